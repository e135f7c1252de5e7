// Package qa answers questions about an indexed video. It gates on the
// video's ingestion status, retrieves the closest transcript chunks and asks
// the chat model for an answer grounded in them.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/ytqa-go/internal/budget"
	"github.com/54b3r/ytqa-go/internal/rag"
	"github.com/54b3r/ytqa-go/internal/tasks"
)

// ErrNotReady is returned when the video has not finished indexing.
var ErrNotReady = errors.New("qa: video is not indexed")

// StatusReader reads a video's ingestion task. *tasks.Registry implements it.
type StatusReader interface {
	Get(videoID string) tasks.Task
}

// Evidence is one transcript chunk an answer was grounded in.
type Evidence struct {
	// Content is the chunk text.
	Content string `json:"content"`
	// Metadata is the chunk metadata stored in the index.
	Metadata map[string]string `json:"metadata"`
	// Score is the cosine similarity to the question.
	Score float32 `json:"score"`
}

// Answer is the result of a question.
type Answer struct {
	VideoID  string     `json:"video_id"`
	Answer   string     `json:"answer"`
	Evidence []Evidence `json:"evidence"`
}

// Config holds the settings for a Service.
type Config struct {
	// TopK is the number of chunks retrieved per question. Defaults to 5.
	TopK int

	// MaxContextTokens bounds the estimated prompt size; the least relevant
	// chunks are dropped to fit. Zero disables trimming.
	MaxContextTokens int

	// Logger receives service logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Service answers questions about the indexed video.
type Service struct {
	retriever rag.Retriever
	tasks     StatusReader
	model     model.BaseChatModel
	cfg       Config
	log       *slog.Logger
}

// NewService constructs a Service.
func NewService(retriever rag.Retriever, status StatusReader, chat model.BaseChatModel, cfg *Config) (*Service, error) {
	if retriever == nil {
		return nil, fmt.Errorf("qa: retriever must not be nil")
	}
	if status == nil {
		return nil, fmt.Errorf("qa: status reader must not be nil")
	}
	if chat == nil {
		return nil, fmt.Errorf("qa: chat model must not be nil")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.TopK <= 0 {
		c.TopK = rag.DefaultTopK
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return &Service{retriever: retriever, tasks: status, model: chat, cfg: c, log: c.Logger}, nil
}

// Answer answers question about videoID. It returns ErrNotReady unless the
// video's task is completed. When nothing relevant is retrieved the answer is
// NoContextAnswer with empty evidence and the model is not called.
func (s *Service) Answer(ctx context.Context, videoID, question string) (*Answer, error) {
	if st := s.tasks.Get(videoID).Status; st != tasks.StatusCompleted {
		return nil, fmt.Errorf("%w (status %s)", ErrNotReady, st)
	}

	docs := s.retriever.Retrieve(ctx, question, videoID, s.cfg.TopK)
	if len(docs) == 0 {
		return &Answer{VideoID: videoID, Answer: NoContextAnswer, Evidence: []Evidence{}}, nil
	}

	segments := make([]string, len(docs))
	for i, d := range docs {
		segments[i] = d.Content
	}
	n := budget.FitSegments(segments, s.cfg.MaxContextTokens, func(segs []string) []*schema.Message {
		return buildMessages(segs, question)
	})
	if n < len(docs) {
		s.log.Info("qa: dropped low-scoring segments to fit context budget",
			slog.String("video_id", videoID),
			slog.Int("kept", n),
			slog.Int("retrieved", len(docs)),
		)
	}

	msgs := buildMessages(segments[:n], question)
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "ytqa.answer",
		Type:      "QA",
		Component: components.ComponentOfChatModel,
	})
	out, err := s.model.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("qa: generate answer: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("qa: generate answer: empty response")
	}

	evidence := make([]Evidence, n)
	for i, d := range docs[:n] {
		evidence[i] = Evidence{Content: d.Content, Metadata: d.Metadata, Score: d.Score}
	}
	return &Answer{
		VideoID:  videoID,
		Answer:   strings.TrimSpace(out.Content),
		Evidence: evidence,
	}, nil
}
