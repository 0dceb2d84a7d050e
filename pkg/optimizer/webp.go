package optimizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// runWebPTool converts PNG bytes to WebP via cwebp. cwebp works on
// files, not pipes, so the conversion goes through a temp directory.
func (o *Optimizer) runWebPTool(ctx context.Context, pngData []byte, quality int) ([]byte, error) {
	dir, err := os.MkdirTemp("", "igvault-webp-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input.png")
	outPath := filepath.Join(dir, "output.webp")

	if err := os.WriteFile(inPath, pngData, 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}

	args := []string{
		"-q", fmt.Sprintf("%d", quality),
		"-m", "6",
		inPath,
		"-o", outPath,
	}
	if _, err := o.runTool(ctx, "cwebp", args, nil); err != nil {
		return nil, err
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cwebp output: %w", err)
	}

	return out, nil
}
