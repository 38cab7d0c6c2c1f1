package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/valign/valign/internal/pipeline"
)

// toolPath resolves a binary path: explicit flag first, then the environment
// (populated from .env by godotenv), then the adapter's default.
func toolPath(flagValue, envVar string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envVar)
}

func run(cmd *cobra.Command, reference, captured string) error {
	outDir, _ := cmd.Flags().GetString("out")
	maxOffset, _ := cmd.Flags().GetFloat64("max-offset")
	duration, _ := cmd.Flags().GetFloat64("duration")
	frameExact, _ := cmd.Flags().GetBool("frame-exact")
	noOCR, _ := cmd.Flags().GetBool("no-ocr")
	ffmpegPath, _ := cmd.Flags().GetString("ffmpeg")
	ffprobePath, _ := cmd.Flags().GetString("ffprobe")
	tesseractPath, _ := cmd.Flags().GetString("tesseract")
	ffmpegPath = toolPath(ffmpegPath, "VALIGN_FFMPEG")
	ffprobePath = toolPath(ffprobePath, "VALIGN_FFPROBE")
	tesseractPath = toolPath(tesseractPath, "VALIGN_TESSERACT")

	absRef, err := filepath.Abs(reference)
	if err != nil {
		return err
	}
	absCap, err := filepath.Abs(captured)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	bar := p.AddBar(100,
		mpb.PrependDecorators(
			decor.Name("Aligning: "),
		),
		mpb.AppendDecorators(
			decor.Percentage(),
		),
	)

	cfg := pipeline.Config{
		ReferencePath: absRef,
		CapturedPath:  absCap,
		OutDir:        outDir,

		MaxOffsetSeconds: maxOffset,
		DurationSeconds:  duration,
		FrameExact:       frameExact,
		DisableOCR:       noOCR,

		FFmpegPath:    ffmpegPath,
		FFprobePath:   ffprobePath,
		TesseractPath: tesseractPath,

		Progress: func(percent int) {
			bar.SetCurrent(int64(percent))
		},
		Status: func(msg string) {
			log.Info().Msg(msg)
		},
	}

	if err := cfg.Validate(); err != nil {
		bar.Abort(true)
		p.Wait()
		return fmt.Errorf("config: %w", err)
	}

	res, err := pipeline.Run(ctx, cfg)
	if !bar.Completed() {
		bar.Abort(true)
	}
	p.Wait()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"method=%s offset=%d frames (%.3fs) confidence=%.2f frames=%d\nreference: %s\ncaptured:  %s\n",
		res.Method, res.OffsetFrames, res.OffsetSeconds, res.Confidence, res.FrameCount,
		res.AlignedReference, res.AlignedCaptured,
	)
	return nil
}
