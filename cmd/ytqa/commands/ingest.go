package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/ytqa-go/internal/tasks"
	"github.com/54b3r/ytqa-go/internal/transcript"
)

// NewIngestCmd constructs the `ytqa ingest` command, which fetches a video's
// transcript and indexes it in the foreground.
func NewIngestCmd() *cobra.Command {
	var video string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch a video transcript and index it",
		Long: `Fetch the transcript of a YouTube video and index it into the vector store.

Indexing replaces whatever the store held before: one video is resident at a
time. --video accepts a bare video ID or any YouTube watch, share, shorts, or
embed URL.

Required environment variables:
  SUPADATA_API_KEY     Transcript API key
  HF_TOKEN             Hugging Face token (EMBEDDING_PROVIDER=huggingface)

Examples:
  ytqa ingest --video dQw4w9WgXcQ
  ytqa ingest --video https://youtu.be/dQw4w9WgXcQ
  INDEX_BACKEND=qdrant ytqa ingest --video dQw4w9WgXcQ`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logger

			videoID, err := transcript.ParseVideoID(video)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			a, err := buildApp(ctx, settings, nil, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer a.Close()

			task, err := ingestVideo(ctx, a, videoID, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d chunks indexed, %d skipped)\n",
				task.VideoID, task.Status, task.Chunks, task.SkippedChunks)
			return nil
		},
	}

	cmd.Flags().StringVarP(&video, "video", "v", "", "YouTube video ID or URL (required)")
	_ = cmd.MarkFlagRequired("video")

	return cmd
}

// ingestVideo fetches and indexes videoID synchronously and returns the final
// task snapshot.
func ingestVideo(ctx context.Context, a *app, videoID string, log *slog.Logger) (tasks.Task, error) {
	text, err := a.fetcher.Fetch(ctx, videoID)
	if errors.Is(err, transcript.ErrNotFound) {
		return tasks.Task{}, fmt.Errorf("no transcript available for %s", videoID)
	}
	if err != nil {
		return tasks.Task{}, err
	}
	log.Info("transcript fetched", slog.String("video_id", videoID), slog.Int("chars", len(text)))

	if err := a.pipeline.Ingest(ctx, videoID, text); err != nil {
		return a.registry.Get(videoID), err
	}
	return a.registry.Get(videoID), nil
}
