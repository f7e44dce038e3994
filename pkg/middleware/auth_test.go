package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	data map[string]interface{}
}

func (t *fakeToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

type fakeVerifier struct{}

func (f *fakeVerifier) Verify(ctx context.Context, raw string) (Token, error) {
	if raw == "goodtoken" {
		return &fakeToken{data: map[string]interface{}{"sub": "user1", "email": "test@example.com"}}, nil
	}
	return nil, fmt.Errorf("invalid token")
}

func serveWithAuth(header string) *httptest.ResponseRecorder {
	g := gin.New()
	g.GET("/", AuthMiddleware(&fakeVerifier{}), func(c *gin.Context) {
		claims, _ := c.Get(ClaimsKey)
		c.JSON(http.StatusOK, gin.H{"claims": claims, "sub": subject(c)})
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	for _, h := range []string{"", "BadHeader", "Bearer ", "Basic dXNlcjpwdw==", "Bearer badtoken"} {
		rw := serveWithAuth(h)
		require.Equal(t, http.StatusUnauthorized, rw.Code, "header %q", h)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	rw := serveWithAuth("Bearer goodtoken")
	require.Equal(t, http.StatusOK, rw.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &got))
	require.Contains(t, got, "claims")
	require.Equal(t, "user1", got["sub"])
}
