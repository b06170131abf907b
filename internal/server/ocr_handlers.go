package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/stocktake/constants"
)

// processBatch runs one worker batch. batch_size is clamped to 1..10.
func (s *Server) processBatch(c *gin.Context) {
	size := 0
	if raw := c.Query("batch_size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.fail(c, badRequest("batch_size must be an integer"))
			return
		}
		size = n
	}

	sum, err := s.deps.Worker.ProcessBatch(c.Request.Context(), size)
	if err != nil {
		requestLogger(c).Error("ocr batch failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch pending jobs"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// resetJob puts a finished job back in the queue with a fresh attempt budget.
func (s *Server) resetJob(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	ctx := c.Request.Context()
	if err := s.deps.Jobs.Reset(ctx, id); err != nil {
		s.fail(c, err)
		return
	}
	job, err := s.deps.Jobs.Get(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Rolls.SetOCRStatus(ctx, job.RollID, constants.JobStatusPending); err != nil {
		requestLogger(c).Warn("failed to reset roll ocr status", "roll_id", job.RollID, "err", err)
	}
	requestLogger(c).Info("ocr job resubmitted", "job_id", id, "roll_id", job.RollID)
	c.JSON(http.StatusOK, job)
}
