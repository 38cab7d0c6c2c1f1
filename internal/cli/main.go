package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/valign/valign/internal/logging"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present
	logging.Init()

	root := &cobra.Command{
		Use:          "valign <reference> <captured>",
		Short:        "Temporally align a captured video with its reference",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0], args[1])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	// Visible flags
	root.Flags().String("out", "out", "Output directory")
	root.Flags().Float64("max-offset", 25, "Maximum offset to search, seconds")
	root.Flags().Float64("duration", 0, "Cap aligned output length, seconds (0 = full overlap)")
	root.Flags().Bool("frame-exact", false, "Use the frame-exact descriptor/phase strategies")
	root.Flags().Bool("no-ocr", false, "Skip the timestamp-overlay strategy")

	// Tool path overrides
	root.Flags().String("ffmpeg", "", "ffmpeg binary path")
	root.Flags().String("ffprobe", "", "ffprobe binary path")
	root.Flags().String("tesseract", "", "tesseract binary path")
	_ = root.Flags().MarkHidden("ffmpeg")
	_ = root.Flags().MarkHidden("ffprobe")
	_ = root.Flags().MarkHidden("tesseract")

	root.AddCommand(burnCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
