package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/ytqa-go/internal/ingestion"
	"github.com/54b3r/ytqa-go/internal/logging"
	"github.com/54b3r/ytqa-go/internal/qa"
	"github.com/54b3r/ytqa-go/internal/tasks"
	"github.com/54b3r/ytqa-go/internal/transcript"
)

// previewRunes is the number of transcript characters returned when an
// ingestion is scheduled.
const previewRunes = 500

// maxBodyBytes bounds the optional JSON body of POST /transcript/.
const maxBodyBytes = 4 << 10

// Response messages.
const (
	msgAlreadyIndexed = "Video already indexed. Ready for questions!"
	msgScheduled      = "Transcript retrieved. Processing embeddings..."
	msgInProgress     = "Video is already being processed."
	msgNoTranscript   = "No transcript available."
	msgInvalidID      = "Invalid YouTube video id or URL."
	msgStillIndexing  = "The video is still being indexed. Please wait for the progress bar to finish."
	msgNotIndexed     = "This video has not been indexed yet. Submit it to /transcript/ first."
	msgIndexFailed    = "Indexing this video failed. Submit it to /transcript/ to try again."
)

// handleTranscript handles POST /transcript/. It returns the stored
// transcript when the video is already indexed, otherwise fetches the
// transcript and schedules a background ingestion.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	raw, err := videoIDParam(r)
	if err != nil {
		s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeJSON(ctx, w, http.StatusBadRequest, transcriptResponse{Message: "invalid request body"})
		return
	}
	videoID, err := transcript.ParseVideoID(raw)
	if err != nil {
		s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeInvalid).Inc()
		writeJSON(ctx, w, http.StatusBadRequest, transcriptResponse{Message: msgInvalidID})
		return
	}
	log = log.With(slog.String("video_id", videoID))

	task := s.deps.Tasks.Get(videoID)
	if task.Status == tasks.StatusCompleted {
		s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeCached).Inc()
		writeJSON(ctx, w, http.StatusOK, transcriptResponse{
			VideoID:    videoID,
			Status:     tasks.StatusCompleted,
			Transcript: task.Transcript,
			Message:    msgAlreadyIndexed,
		})
		return
	}
	if task.Status == tasks.StatusProcessing || s.deps.Queue.Queued(videoID) {
		s.writeInProgress(w, r, videoID)
		return
	}

	text, err := s.deps.Transcripts.Fetch(ctx, videoID)
	if errors.Is(err, transcript.ErrNotFound) || (err == nil && strings.TrimSpace(text) == "") {
		s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeNotFound).Inc()
		writeJSON(ctx, w, http.StatusNotFound, transcriptResponse{VideoID: videoID, Message: msgNoTranscript})
		return
	}
	if err != nil {
		log.Error("transcript fetch failed", slog.Any("error", err))
		s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeError).Inc()
		writeJSON(ctx, w, http.StatusInternalServerError, transcriptResponse{VideoID: videoID, Message: "Error: " + err.Error()})
		return
	}

	switch err := s.deps.Queue.Enqueue(videoID, text); {
	case errors.Is(err, ingestion.ErrAlreadyQueued):
		s.writeInProgress(w, r, videoID)
		return
	case errors.Is(err, ingestion.ErrQueueFull), errors.Is(err, ingestion.ErrDispatcherClosed):
		log.Warn("ingestion not scheduled", slog.Any("error", err))
		s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeError).Inc()
		w.Header().Set("Retry-After", "5")
		writeJSON(ctx, w, http.StatusServiceUnavailable, transcriptResponse{VideoID: videoID, Message: "Error: " + err.Error()})
		return
	case err != nil:
		log.Error("ingestion not scheduled", slog.Any("error", err))
		s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeError).Inc()
		writeJSON(ctx, w, http.StatusInternalServerError, transcriptResponse{VideoID: videoID, Message: "Error: " + err.Error()})
		return
	}

	log.Info("ingestion scheduled", slog.Int("transcript_chars", len(text)))
	s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeQueued).Inc()
	writeJSON(ctx, w, http.StatusOK, transcriptResponse{
		VideoID:    videoID,
		Status:     tasks.StatusProcessing,
		Transcript: preview(text),
		Message:    msgScheduled,
	})
}

// writeInProgress reports that videoID is already queued or being ingested.
func (s *Server) writeInProgress(w http.ResponseWriter, r *http.Request, videoID string) {
	s.metrics.transcriptRequestsTotal.WithLabelValues(outcomeDuplicate).Inc()
	writeJSON(r.Context(), w, http.StatusOK, transcriptResponse{
		VideoID: videoID,
		Status:  tasks.StatusProcessing,
		Message: msgInProgress,
	})
}

// handleStatus handles GET /transcript/status/{video_id}. Unknown videos are
// reported as not_started.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	videoID, err := transcript.ParseVideoID(r.PathValue("video_id"))
	if err != nil {
		writeJSON(r.Context(), w, http.StatusBadRequest, detailResponse{Detail: msgInvalidID})
		return
	}
	writeJSON(r.Context(), w, http.StatusOK, s.deps.Tasks.Get(videoID))
}

// handleAsk handles GET /transcript/ask?video_id=&question=.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	start := time.Now()

	q := r.URL.Query()
	question := strings.TrimSpace(q.Get("question"))
	if question == "" {
		s.metrics.observeAsk(outcomeInvalid, start)
		writeJSON(ctx, w, http.StatusBadRequest, detailResponse{Detail: "question is required"})
		return
	}
	videoID, err := transcript.ParseVideoID(q.Get("video_id"))
	if err != nil {
		s.metrics.observeAsk(outcomeInvalid, start)
		writeJSON(ctx, w, http.StatusBadRequest, detailResponse{Detail: msgInvalidID})
		return
	}

	answer, err := s.deps.QA.Answer(ctx, videoID, question)
	switch {
	case errors.Is(err, qa.ErrNotReady):
		s.metrics.observeAsk(outcomeNotReady, start)
		writeJSON(ctx, w, http.StatusBadRequest, detailResponse{Detail: s.notReadyDetail(videoID)})
		return
	case err != nil:
		log.Error("answer failed", slog.String("video_id", videoID), slog.Any("error", err))
		s.metrics.observeAsk(outcomeError, start)
		writeJSON(ctx, w, http.StatusInternalServerError, detailResponse{Detail: "AI connection issue: " + err.Error()})
		return
	}

	outcome := outcomeOK
	if len(answer.Evidence) == 0 {
		outcome = outcomeNoContext
	}
	s.metrics.observeAsk(outcome, start)
	writeJSON(ctx, w, http.StatusOK, answer)
}

// notReadyDetail explains why videoID cannot be asked about yet. A video
// wiped from the index by a later ingestion reads as not indexed.
func (s *Server) notReadyDetail(videoID string) string {
	if s.deps.Queue.Queued(videoID) {
		return msgStillIndexing
	}
	switch s.deps.Tasks.Get(videoID).Status {
	case tasks.StatusNotStarted:
		return msgNotIndexed
	case tasks.StatusFailed, tasks.StatusError:
		return msgIndexFailed
	default:
		return msgStillIndexing
	}
}

// videoIDParam reads video_id from the query string, falling back to an
// optional JSON body.
func videoIDParam(r *http.Request) (string, error) {
	if v := r.URL.Query().Get("video_id"); v != "" {
		return v, nil
	}
	if r.Body == nil {
		return "", nil
	}
	var req transcriptRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if errors.Is(err, io.EOF) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return req.VideoID, nil
}

// preview returns the first previewRunes characters of text followed by an
// ellipsis.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) > previewRunes {
		runes = runes[:previewRunes]
	}
	return string(runes) + "..."
}
