// Package publisher catalogues uploaded works, stores their PDFs and, in
// direct mode, announces them to the indexer over Kafka.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/scriptura/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
)

// WorkCreator inserts a work, running beforeCommit inside the transaction.
type WorkCreator interface {
	Create(ctx context.Context, w *catalog.Work, beforeCommit func(*catalog.Work) error) (*catalog.Work, error)
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher coordinates the catalog insert, the PDF write and the
// work-ingested event.
type Publisher struct {
	store    WorkCreator
	producer EventPublisher
	cfg      config.IngestionConfig
	baseDir  string
	logger   *slog.Logger
}

// New creates a Publisher. Files land under baseDir; catalog paths stay
// relative to it. producer may be nil.
func New(store WorkCreator, producer EventPublisher, cfg config.IngestionConfig, baseDir string) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		cfg:      cfg,
		baseDir:  baseDir,
		logger:   slog.Default().With("component", "publisher"),
	}
}

func (p *Publisher) abs(rel string) string {
	if filepath.IsAbs(rel) || p.baseDir == "" {
		return rel
	}
	return filepath.Join(p.baseDir, rel)
}

// Ingest catalogues req and writes file to the PDF directory in the same
// transaction: a failed write rolls the insert back, and a failed insert
// leaves no file behind.
func (p *Publisher) Ingest(ctx context.Context, req *ingestion.UploadRequest, file io.Reader) (*ingestion.UploadResponse, error) {
	safe := validator.SafeName(req.Title)
	if safe == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "title must contain at least one letter or digit")
	}
	pdfPath := filepath.ToSlash(filepath.Join(p.cfg.PDFDir, safe+".pdf"))
	textPath := filepath.ToSlash(filepath.Join(p.cfg.CorpusDir, safe+".txt"))
	dst := p.abs(pdfPath)
	if _, err := os.Stat(dst); err == nil {
		return nil, apperrors.Newf(apperrors.ErrWorkExists, http.StatusConflict, "a work named %q already exists", req.Title)
	}

	status := catalog.StatusUnderReview
	if p.cfg.Mode == ingestion.ModeDirect {
		status = catalog.StatusPending
	}
	work := &catalog.Work{
		Title:    strings.TrimSpace(req.Title),
		Author:   strings.TrimSpace(req.Author),
		Year:     req.Year,
		Genre:    strings.TrimSpace(req.Genre),
		Movement: strings.TrimSpace(req.Movement),
		TextPath: textPath,
		PDFPath:  pdfPath,
		Status:   status,
	}

	written := false
	created, err := p.store.Create(ctx, work, func(*catalog.Work) error {
		if err := writeFile(dst, file); err != nil {
			return fmt.Errorf("storing pdf: %w", err)
		}
		written = true
		return nil
	})
	if err != nil {
		if written {
			os.Remove(dst)
		}
		if errors.Is(err, apperrors.ErrWorkExists) {
			return nil, apperrors.Newf(apperrors.ErrWorkExists, http.StatusConflict, "a work named %q already exists", req.Title)
		}
		return nil, fmt.Errorf("creating work: %w", err)
	}

	if status == catalog.StatusPending && p.producer != nil {
		event := kafka.Event{
			Key: strconv.FormatInt(created.ID, 10),
			Value: ingestion.WorkIngestedEvent{
				WorkID:     created.ID,
				Title:      created.Title,
				Status:     string(created.Status),
				IngestedAt: time.Now().UTC(),
			},
		}
		if err := p.producer.Publish(ctx, event); err != nil {
			p.logger.Error("failed to publish work-ingested, the indexer will pick it up on its next poll",
				"work_id", created.ID,
				"error", err,
			)
		}
	}

	return &ingestion.UploadResponse{
		WorkID:      created.ID,
		Title:       created.Title,
		Status:      string(created.Status),
		PDFPath:     created.PDFPath,
		TextPath:    created.TextPath,
		DownloadURL: created.DownloadURL(),
	}, nil
}

func writeFile(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
