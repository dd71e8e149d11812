package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"edukeeper/pkg/domain"
	"edukeeper/pkg/queue"
	"edukeeper/pkg/storage"
	"edukeeper/pkg/store"
)

// Config holds runtime configuration for the extraction worker.
type Config struct {
	DatabaseURL    string
	Store          store.Store
	Objects        storage.ObjectStore
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// App turns uploaded files into extracted document text.
type App struct {
	store   store.Store
	objects storage.ObjectStore
}

// New constructs the extraction worker application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, err
		}
	}
	return &App{store: dataStore, objects: objects}, nil
}

// HandleJob processes one extraction job from the stream. A returned error
// makes the queue retry the job; permanent failures mark the document
// failed and return nil so the message is acked.
func (a *App) HandleJob(ctx context.Context, job queue.JobStatus) error {
	doc, ok, err := a.store.GetDocument(job.DocumentID)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	if !ok {
		slog.Warn("extraction job for missing document", "document_id", job.DocumentID, "job_id", job.ID)
		return nil
	}
	if err := a.store.SetDocumentStatus(doc.ID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	tempPath, err := a.fetchToTemp(ctx, doc)
	if err != nil {
		return a.fail(doc.ID, err)
	}
	defer os.Remove(tempPath)

	content, err := a.extractText(doc.StorageKey, tempPath)
	if err != nil {
		// Unparseable input will not get better on retry.
		if markErr := a.markFailed(doc.ID, err); markErr != nil {
			return markErr
		}
		return nil
	}
	if err := a.store.SetDocumentContent(doc.ID, content); err != nil {
		return a.fail(doc.ID, fmt.Errorf("save content: %w", err))
	}
	if err := a.store.SetDocumentStatus(doc.ID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	slog.Info("document extracted", "document_id", doc.ID, "chars", len(content))
	return nil
}

func (a *App) fail(docID string, err error) error {
	if markErr := a.markFailed(docID, err); markErr != nil {
		slog.Error("failed to mark document failed", "document_id", docID, "err", markErr)
	}
	return err
}

func (a *App) markFailed(docID string, cause error) error {
	msg := strings.TrimSpace(cause.Error())
	if len(msg) > 500 {
		msg = msg[:500]
	}
	return a.store.SetDocumentStatus(docID, domain.StatusFailed, msg)
}

func (a *App) fetchToTemp(ctx context.Context, doc domain.Document) (string, error) {
	if strings.TrimSpace(doc.StorageKey) == "" {
		return "", fmt.Errorf("storage key missing")
	}
	rc, err := a.objects.Get(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("fetch object: %w", err)
	}
	defer rc.Close()
	ext := filepath.Ext(doc.StorageKey)
	tmpFile, err := os.CreateTemp("", "edukeeper-*"+ext)
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()
	if _, err := io.Copy(tmpFile, rc); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}
