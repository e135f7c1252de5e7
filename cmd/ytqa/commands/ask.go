package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/ytqa-go/internal/transcript"
)

// NewAskCmd constructs the `ytqa ask` command, which indexes a video and
// answers a single question about it.
func NewAskCmd() *cobra.Command {
	var video string
	var showEvidence bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about a YouTube video",
		Long: `Index a YouTube video's transcript and answer a question about it.

The answer is grounded only in the video's transcript. Use --evidence to print
the transcript segments the answer was based on.

Examples:
  ytqa ask --video dQw4w9WgXcQ "what is the main argument?"
  ytqa ask --video https://youtu.be/dQw4w9WgXcQ --evidence "which example is used?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logger

			videoID, err := transcript.ParseVideoID(video)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			a, err := buildApp(ctx, settings, nil, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			if _, err := ingestVideo(ctx, a, videoID, log); err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answer, err := a.qa.Answer(ctx, videoID, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Answer)
			if showEvidence {
				for i, e := range answer.Evidence {
					fmt.Fprintf(out, "\n[%d] score=%.3f\n%s\n", i+1, e.Score, e.Content)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&video, "video", "v", "", "YouTube video ID or URL (required)")
	cmd.Flags().BoolVarP(&showEvidence, "evidence", "e", false, "Print the transcript segments behind the answer")
	_ = cmd.MarkFlagRequired("video")

	return cmd
}
