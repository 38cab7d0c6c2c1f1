package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/valign/valign/internal/ports/adapters/ffmpeg"
)

// burnCmd burns a presentation-timestamp overlay onto a video, producing
// content the timestamp strategy can align. Hidden; meant for preparing test
// material, not for end users.
func burnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "burn <input> <output>",
		Short:  "Burn a timestamp overlay onto a video",
		Args:   cobra.ExactArgs(2),
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ffmpegPath, _ := cmd.Flags().GetString("ffmpeg")

			ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
			defer cancel()

			media := ffmpeg.New(toolPath(ffmpegPath, "VALIGN_FFMPEG"), "")
			if err := media.BurnTimestamps(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[1])
			return nil
		},
	}
	cmd.Flags().String("ffmpeg", "", "ffmpeg binary path")
	_ = cmd.Flags().MarkHidden("ffmpeg")
	return cmd
}
