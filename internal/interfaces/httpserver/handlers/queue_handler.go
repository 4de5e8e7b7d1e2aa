package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/interfaces/httpserver/responses"
)

// QueueCounter reports job counts by state.
type QueueCounter interface {
	Counts(ctx context.Context, jobType job.Type) (map[job.State]int64, error)
}

type QueueHandler struct {
	queue QueueCounter
}

func NewQueueHandler(queue QueueCounter) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// List returns counts for every job type.
func (h *QueueHandler) List(c *gin.Context) {
	resp := responses.QueueListResponse{Queues: make([]responses.QueueCounts, 0, len(job.Types()))}
	for _, jobType := range job.Types() {
		counts, err := h.queue.Counts(c.Request.Context(), jobType)
		if err != nil {
			responses.HandleError(c, err, "failed to read queue counts")
			return
		}
		resp.Queues = append(resp.Queues, responses.NewQueueCounts(jobType, counts))
	}
	c.JSON(http.StatusOK, resp)
}
