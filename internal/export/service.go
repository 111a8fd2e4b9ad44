// Package export renders a meeting session into shareable documents:
// JSON, Markdown, plain text, YAML and HTML.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/domain"
)

// Service writes exported documents into a target directory. It implements
// core.ExportService.
type Service struct {
	dir string
}

func NewService(dir string) (*Service, error) {
	if dir == "" {
		dir = "exports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %q: %w", dir, err)
	}
	return &Service{dir: dir}, nil
}

// Export renders the bundle in the given format and returns the file path.
// Files are written via a tmp rename so readers never see partial output.
func (s *Service) Export(ctx context.Context, bundle core.ExportBundle, format domain.ExportFormat, opts domain.ExportOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	doc := buildDocument(bundle, opts)

	var (
		data []byte
		err  error
	)
	switch format {
	case domain.ExportJSON:
		data, err = renderJSON(doc)
	case domain.ExportMarkdown:
		data, err = renderMarkdown(doc)
	case domain.ExportText:
		data, err = renderText(doc)
	case domain.ExportYAML:
		data, err = renderYAML(doc)
	case domain.ExportHTML:
		data, err = renderHTML(doc)
	default:
		return "", fmt.Errorf("%q: %w", format, domain.ErrUnsupportedFormat)
	}
	if err != nil {
		return "", fmt.Errorf("render %s export: %w", format, err)
	}

	name := fmt.Sprintf("notes_%s_%d.%s", bundle.Session.SessionID, time.Now().Unix(), extension(format))
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename export: %w", err)
	}

	log.Info().Str("module", "export.service").Str("path", path).
		Str("format", string(format)).Int("bytes", len(data)).Msg("session exported")
	return path, nil
}

func (s *Service) Close() error { return nil }

func extension(format domain.ExportFormat) string {
	switch format {
	case domain.ExportMarkdown:
		return "md"
	case domain.ExportHTML:
		return "html"
	default:
		return string(format)
	}
}
