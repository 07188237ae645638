// Package convert extracts plain text from PDF files.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/resilience"
)

// ErrEmptyOutput is returned when the extractor ran but produced no text.
var ErrEmptyOutput = errors.New("converter produced no text")

// Converter writes the text of the PDF at src to dst. Converting onto an
// existing non-empty dst is a no-op.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// Func adapts a function to Converter.
type Func func(ctx context.Context, src, dst string) error

func (f Func) Convert(ctx context.Context, src, dst string) error { return f(ctx, src, dst) }

// PDFToText shells out to poppler's pdftotext (or any command taking
// "<args> src dst").
type PDFToText struct {
	Command string
	Args    []string
	Timeout time.Duration
	logger  *slog.Logger
}

func NewPDFToText(cfg config.ConverterConfig) *PDFToText {
	return &PDFToText{
		Command: cfg.Command,
		Args:    cfg.Args,
		Timeout: cfg.Timeout,
		logger:  slog.Default().With("component", "converter"),
	}
}

// Exists reports whether path is a non-empty regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func (c *PDFToText) Convert(ctx context.Context, src, dst string) error {
	if Exists(dst) {
		return nil
	}
	if src == "" {
		return fmt.Errorf("no source PDF for %s", dst)
	}
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source PDF: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp := dst + ".tmp"
	defer os.Remove(tmp)

	start := time.Now()
	err := resilience.WithTimeout(ctx, c.Timeout, "pdf-conversion", func(ctx context.Context) error {
		args := append(append([]string{}, c.Args...), src, tmp)
		cmd := exec.CommandContext(ctx, c.Command, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s %s: %w: %s", c.Command, filepath.Base(src), err, strings.TrimSpace(stderr.String()))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !Exists(tmp) {
		return fmt.Errorf("%s: %w", src, ErrEmptyOutput)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("publishing %s: %w", dst, err)
	}
	if c.logger != nil {
		c.logger.Info("converted pdf", "src", src, "dst", dst, "duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}

// DirReport summarises a ConvertDir run.
type DirReport struct {
	Found     int
	Converted int
	Skipped   int
	Failed    map[string]error
}

// ConvertDir converts every *.pdf in pdfDir to <corpusDir>/<name>.txt,
// carrying on past individual failures.
func ConvertDir(ctx context.Context, c Converter, pdfDir, corpusDir string) (*DirReport, error) {
	entries, err := os.ReadDir(pdfDir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", pdfDir, err)
	}
	if err := os.MkdirAll(corpusDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", corpusDir, err)
	}
	logger := slog.Default().With("component", "converter")
	report := &DirReport{Failed: make(map[string]error)}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".pdf") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Found++
		dst := filepath.Join(corpusDir, strings.TrimSuffix(name, filepath.Ext(name))+".txt")
		if Exists(dst) {
			report.Skipped++
			continue
		}
		if err := c.Convert(ctx, filepath.Join(pdfDir, name), dst); err != nil {
			logger.Error("pdf conversion failed", "file", name, "error", err)
			report.Failed[name] = err
			continue
		}
		report.Converted++
	}
	return report, nil
}
