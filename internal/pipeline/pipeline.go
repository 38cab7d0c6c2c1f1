// Package pipeline wires the adapters into the alignment usecase and owns
// the run's output directory layout.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/valign/valign/internal/ports"
	"github.com/valign/valign/internal/ports/adapters/ffmpeg"
	"github.com/valign/valign/internal/ports/adapters/tesseract"
	"github.com/valign/valign/internal/types"
	"github.com/valign/valign/internal/usecase"
)

type Config struct {
	ReferencePath string
	CapturedPath  string
	OutDir        string

	MaxOffsetSeconds float64
	DurationSeconds  float64
	FrameExact       bool

	// DisableOCR skips the timestamp strategy even when tesseract is present.
	DisableOCR bool

	FFmpegPath    string
	FFprobePath   string
	TesseractPath string

	Progress types.ProgressFunc
	Status   types.StatusFunc
}

func (c Config) Validate() error {
	if c.ReferencePath == "" {
		return errors.New("reference input is empty")
	}
	if _, err := os.Stat(c.ReferencePath); err != nil {
		return fmt.Errorf("stat reference: %w", err)
	}
	if c.CapturedPath == "" {
		return errors.New("captured input is empty")
	}
	if _, err := os.Stat(c.CapturedPath); err != nil {
		return fmt.Errorf("stat captured: %w", err)
	}
	if c.MaxOffsetSeconds < 0 {
		return fmt.Errorf("max offset must be >= 0")
	}
	if c.DurationSeconds < 0 {
		return fmt.Errorf("duration must be >= 0")
	}
	return nil
}

// Run executes one alignment and writes the trimmed pair plus a result.json
// into a per-run output directory. Returns the alignment result.
func Run(ctx context.Context, cfg Config) (types.AlignmentResult, error) {
	media := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)

	deps := usecase.Deps{Media: media}
	if !cfg.DisableOCR {
		deps.OCR = tesseract.New(cfg.TesseractPath)
	}

	uc := usecase.New(deps)

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, cfg.ReferencePath, cfg.CapturedPath, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return types.AlignmentResult{}, err
	}

	res, err := uc.Run(ctx, usecase.Input{
		ReferencePath:    cfg.ReferencePath,
		CapturedPath:     cfg.CapturedPath,
		OutDir:           runOutDir,
		MaxOffsetSeconds: cfg.MaxOffsetSeconds,
		DurationSeconds:  cfg.DurationSeconds,
		FrameExact:       cfg.FrameExact,
		Progress:         cfg.Progress,
		Status:           cfg.Status,
	})
	if err != nil {
		return types.AlignmentResult{}, err
	}

	b, err := json.MarshalIndent(res.Alignment, "", "  ")
	if err != nil {
		return types.AlignmentResult{}, fmt.Errorf("marshal result: %w", err)
	}
	resultPath := filepath.Join(runOutDir, "result.json")
	if err := os.WriteFile(resultPath, b, 0o644); err != nil {
		return types.AlignmentResult{}, err
	}
	return res.Alignment, nil
}

func buildRunOutDir(outRoot, refPath, capPath string, now time.Time) string {
	name := normalizePathSegment(baseName(refPath) + "-vs-" + baseName(capPath))
	if name == "" {
		name = "run"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%s|%d", refPath, capPath, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func baseName(p string) string {
	return strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.MediaTool = (*ffmpeg.Adapter)(nil)
var _ ports.OCR = (*tesseract.Adapter)(nil)
