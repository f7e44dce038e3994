package service

import (
	"context"
	"errors"

	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/contextforge/contextforge/backend/go-services/internal/document/repository"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrExists            = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Service is the document catalog. Reads serve the list endpoint; Register
// and SetStatus are called only by the ingestion pipeline.
type Service interface {
	Register(ctx context.Context, d *document.Document) error
	Get(ctx context.Context, id string) (*document.Document, error)
	List(ctx context.Context) ([]*document.Document, error)
	SetStatus(ctx context.Context, id string, status document.Status, detail string) error
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() Service {
	return &catalogService{repo: repository.NewMemoryRepo()}
}

// NewMongoService returns a Service backed by a MongoDB collection.
// Caller owns the client and passes the collection in.
func NewMongoService(ctx context.Context, col *mongo.Collection) (Service, error) {
	repo, err := repository.NewMongoRepo(ctx, col)
	if err != nil {
		return nil, err
	}
	return &catalogService{repo: repo}, nil
}

// NewService wraps an arbitrary repository.
func NewService(repo repository.Repository) Service {
	return &catalogService{repo: repo}
}

type catalogService struct {
	repo repository.Repository
}

func (s *catalogService) Register(ctx context.Context, d *document.Document) error {
	if d.StoragePath == "" {
		d.StoragePath = document.StoragePath(d.ID)
	}
	return translate(s.repo.Create(ctx, d))
}

func (s *catalogService) Get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}

func (s *catalogService) List(ctx context.Context) ([]*document.Document, error) {
	return s.repo.List(ctx)
}

func (s *catalogService) SetStatus(ctx context.Context, id string, status document.Status, detail string) error {
	return translate(s.repo.SetStatus(ctx, id, status, detail))
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrExists):
		return ErrExists
	case errors.Is(err, repository.ErrInvalidTransition):
		return ErrInvalidTransition
	}
	return err
}
