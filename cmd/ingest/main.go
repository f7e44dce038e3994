package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/contextforge/contextforge/backend/go-services/internal/config"
	"github.com/contextforge/contextforge/backend/go-services/internal/database"
	"github.com/contextforge/contextforge/backend/go-services/internal/document"
	"github.com/contextforge/contextforge/backend/go-services/internal/document/service"
	"github.com/contextforge/contextforge/backend/go-services/internal/ingest"
	"github.com/contextforge/contextforge/backend/go-services/internal/pipeline"
	"github.com/contextforge/contextforge/backend/go-services/internal/storage"
	"github.com/contextforge/contextforge/backend/go-services/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ingest uploads local PDFs as one batch through the same pipeline the
// gateway uses and prints every status change.
//
//	ingest [-level debug] a.pdf b.pdf ...
func main() {
	level := flag.String("level", "warn", "log level")
	flag.Parse()
	logger.Init(*level)
	logger.SetOutput(os.Stderr)

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [-level LEVEL] FILE.pdf...")
		os.Exit(2)
	}
	os.Exit(run(context.Background(), paths))
}

// run returns the process exit code so deferred cleanup finishes first.
func run(ctx context.Context, paths []string) int {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Errorf("failed to load config: %v", err)
		return 1
	}
	if len(paths) > cfg.Upload.MaxBatch {
		logger.Errorf("at most %d files per batch, got %d", cfg.Upload.MaxBatch, len(paths))
		return 2
	}

	gw, _, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Errorf("storage init failed: %v", err)
		return 1
	}

	catalog := service.NewMemoryService()
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
		if err != nil {
			logger.Warnf("cannot connect to MongoDB (%v), catalog updates are skipped", err)
		} else {
			defer func() {
				if err := client.Disconnect(ctx); err != nil {
					logger.Warnf("mongodb disconnect: %v", err)
				}
			}()
			svc, err := service.NewMongoService(ctx, client.Database(cfg.MongoDB.Database).Collection(cfg.MongoDB.Collection))
			if err != nil {
				logger.Errorf("catalog init failed: %v", err)
				return 1
			}
			catalog = svc
		}
	}

	pipe := pipeline.New(gw,
		ingest.NewDispatcher(cfg.Backend.IndexerURL, nil, cfg.Backend.Timeout),
		catalog,
		pipeline.WithSignedURLTTL(cfg.Storage.SignedURLTTL),
		pipeline.WithValidator(pipeline.Validator{MaxBytes: cfg.Upload.MaxBytes, Sniff: cfg.Upload.SniffBytes}),
	)
	printer := pipeline.ObserverFunc(func(_ *pipeline.Batch, ev pipeline.Event) {
		line := fmt.Sprintf("[%d] %-24s %-10s", ev.Index, ev.Filename, ev.To)
		if ev.DocID != "" {
			line += " " + ev.DocID
		}
		if ev.Detail != "" {
			line += "  " + ev.Detail
		}
		fmt.Println(line)
	})

	files := make([]pipeline.File, 0, len(paths))
	for _, p := range paths {
		files = append(files, localFile(p))
	}
	results := pipeline.NewCoordinator(pipe, printer).Run(ctx, pipeline.NewBatch(uuid.NewString(), files))

	failed := countFailed(results)
	fmt.Printf("%d done, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func countFailed(results []pipeline.Result) int {
	n := 0
	for _, res := range results {
		if res.Status != document.StatusDone {
			n++
		}
	}
	return n
}

// localFile declares the content type detected from the file itself.
func localFile(path string) pipeline.File {
	f := pipeline.File{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
	if st, err := os.Stat(path); err == nil {
		f.Size = st.Size()
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		f.ContentType = mt.String()
	}
	return f
}
