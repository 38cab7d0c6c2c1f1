// Package tesseract shells out to the tesseract binary for single-line
// digit/colon/period recognition.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"

	"github.com/valign/valign/internal/ports"
)

type Adapter struct {
	bin string
}

var _ ports.OCR = (*Adapter)(nil)

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "tesseract"
	}
	return &Adapter{bin: binPath}
}

// Recognize writes the image to a temp PNG and runs tesseract in single-line
// mode with a whitelist of timestamp characters. Empty output is not an
// error; the caller decides whether the text parses.
func (a *Adapter) Recognize(ctx context.Context, img image.Image) (string, error) {
	f, err := os.CreateTemp("", "valign-ocr-*.png")
	if err != nil {
		return "", fmt.Errorf("create ocr temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode ocr image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close ocr image: %w", err)
	}

	cmd := exec.CommandContext(ctx, a.bin,
		f.Name(),
		"stdout",
		"--psm", "7",
		"-c", "tessedit_char_whitelist=0123456789:.",
	)
	var out strings.Builder
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}
