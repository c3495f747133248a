package packaging

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/docforge/internal/sanitize"
)

// FileExporter writes every document and extra file under
// Dir/<project id>/.
type FileExporter struct {
	Dir string
}

func (FileExporter) Name() string { return "file_export" }

func (e FileExporter) Package(ctx context.Context, b *Bundle) error {
	if e.Dir == "" {
		return errors.New("export directory is not set")
	}
	if err := sanitize.ValidateProjectID(b.ProjectID); err != nil {
		return err
	}
	dir, err := sanitize.JoinWithin(e.Dir, b.ProjectID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	write := func(name, content string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := sanitize.JoinWithin(dir, name)
		if err != nil {
			return err
		}
		return os.WriteFile(path, []byte(content), 0o644)
	}
	var errs []error
	for _, d := range b.Documents {
		if err := sanitize.ValidateDocumentID(d.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := write(d.ID+".md", d.Content); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", d.ID, err))
		}
	}
	for name, content := range b.Files() {
		if err := write(name, content); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
