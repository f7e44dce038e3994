package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const appName = "contextforge-gateway"

// ErrNoURI is returned when the catalog database is not configured.
var ErrNoURI = errors.New("mongodb: no uri configured")

// ConnectMongo dials uri and pings the primary, both within timeout. The
// returned client belongs to the caller, who must Disconnect it.
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if uri == "" {
		return nil, ErrNoURI
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().ApplyURI(uri).SetAppName(appName).SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: open catalog connection: %w", err)
	}
	if err := client.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: catalog primary unreachable: %w", err)
	}
	return client, nil
}

// ConnectWithRetry calls ConnectMongo up to attempts times, doubling backoff
// between tries. It gives up early when ctx ends.
func ConnectWithRetry(ctx context.Context, uri string, timeout time.Duration, attempts int, backoff time.Duration) (*mongo.Client, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		var client *mongo.Client
		if client, err = ConnectMongo(ctx, uri, timeout); err == nil {
			return client, nil
		}
		if errors.Is(err, ErrNoURI) {
			return nil, err
		}
		logger.Warnf("attempt %d/%d: catalog database not ready: %v", i, attempts, err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("mongodb: gave up after %d attempts: %w", attempts, err)
}
