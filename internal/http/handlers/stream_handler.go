package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/chainbid/relay/internal/http/dto"
	"github.com/chainbid/relay/internal/jobs"
	"github.com/chainbid/relay/internal/models"
)

const streamPollInterval = 200 * time.Millisecond

// StreamHandler serves job output as server-sent events. Jobs are not
// cancellable; a consumer that disconnects just stops reading.
type StreamHandler struct {
	streamer *jobs.Streamer
	log      *zap.Logger
}

func NewStreamHandler(streamer *jobs.Streamer, log *zap.Logger) *StreamHandler {
	return &StreamHandler{streamer: streamer, log: log}
}

func writeSSE(w *bufio.Writer, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	return w.Flush()
}

// Stream replays accumulated output, then follows the job until it reaches
// a terminal state. Events: status, chunk, done, error.
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("jobId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid job id"})
	}
	if _, _, _, err := h.streamer.Poll(jobID, 0); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "job not found"})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		cursor := 0
		lastStatus := ""
		for {
			job, fragment, next, err := h.streamer.Poll(jobID, cursor)
			if err != nil {
				_ = writeSSE(w, "error", map[string]string{"error": "job vanished"})
				return
			}
			if job.Status != lastStatus {
				if err := writeSSE(w, "status", map[string]string{"status": job.Status}); err != nil {
					return
				}
				lastStatus = job.Status
			}
			if fragment != "" {
				if err := writeSSE(w, "chunk", map[string]string{"text": fragment}); err != nil {
					return
				}
				cursor = next
			}
			switch job.Status {
			case models.JobStatusDone:
				_ = writeSSE(w, "done", map[string]any{"job_id": job.ID.String()})
				return
			case models.JobStatusError:
				_ = writeSSE(w, "error", map[string]string{"error": job.Error})
				return
			}
			time.Sleep(streamPollInterval)
		}
	}))
	return nil
}
