package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Converter turns a rendered document into its distributable PDF form.
type Converter interface {
	Convert(ctx context.Context, doc []byte) ([]byte, error)
}

// ConversionError marks converter failures: tool missing, tool exit status,
// timeout. The pipeline retries these once before recording the failure.
type ConversionError struct {
	Tool string
	Err  error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert with %s: %v", e.Tool, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ToolConverter shells out to a headless office converter. When the primary
// binary is not installed it falls back to the alternative name.
type ToolConverter struct {
	Binary   string
	Fallback string
}

// DefaultConverter covers the usual installation names.
func DefaultConverter() ToolConverter {
	return ToolConverter{Binary: "libreoffice", Fallback: "soffice"}
}

func (c ToolConverter) Convert(ctx context.Context, doc []byte) ([]byte, error) {
	tool := c.Binary
	out, err := c.convertWith(ctx, tool, doc)
	if err == nil {
		return out, nil
	}
	if c.Fallback != "" && isNotInstalled(err) {
		tool = c.Fallback
		if out, fbErr := c.convertWith(ctx, tool, doc); fbErr == nil {
			return out, nil
		} else {
			err = fbErr
		}
	}
	return nil, &ConversionError{Tool: tool, Err: err}
}

func (c ToolConverter) convertWith(ctx context.Context, tool string, doc []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "sbp-convert-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "plan.txt")
	if err := os.WriteFile(in, doc, 0o600); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, tool, "--headless", "--convert-to", "pdf", "--outdir", dir, in)
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	pdf, err := os.ReadFile(filepath.Join(dir, "plan.pdf"))
	if err != nil {
		return nil, fmt.Errorf("converter produced no output: %w", err)
	}
	return pdf, nil
}

func isNotInstalled(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return errors.Is(execErr.Err, exec.ErrNotFound)
	}
	return false
}
