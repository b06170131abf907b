package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/internal/capture"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/dedupe"
	"github.com/joseph-ayodele/stocktake/internal/entity"
)

type captureResponse = capture.Outcome

// captureRoll reads the multipart "image" and optional counter fields and
// hands them to the capture service.
func (s *Server) captureRoll(c *gin.Context) {
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	limit := s.deps.Capture.MaxBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	file, header, err := c.Request.FormFile("image")
	if err != nil {
		s.fail(c, badRequest("image file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		s.fail(c, badRequest("failed to read image"))
		return
	}

	out, err := s.deps.Capture.Capture(c.Request.Context(), capture.Input{
		Session:   sess,
		Filename:  header.Filename,
		Data:      data,
		Quality:   c.PostForm("quality"),
		Color:     c.PostForm("color"),
		LotNumber: c.PostForm("lot_number"),
		Meters:    c.PostForm("meters"),
	})
	if errors.Is(err, capture.ErrTooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("image exceeds %d bytes", limit)})
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (s *Server) listRolls(c *gin.Context) {
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	rolls, err := s.deps.Rolls.ListBySession(c.Request.Context(), sess.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if rolls == nil {
		rolls = []*entity.CountedRoll{}
	}
	c.JSON(http.StatusOK, gin.H{"rolls": rolls, "total": len(rolls)})
}

// checkDuplicate runs all three tiers for an explicit query, typically a roll
// whose fields were corrected after OCR.
func (s *Server) checkDuplicate(c *gin.Context) {
	var q dedupe.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		s.fail(c, badRequest("invalid duplicate query"))
		return
	}
	if q.ContentHash == "" && q.PerceptualHash == "" && q.SessionID == uuid.Nil {
		s.fail(c, badRequest("content_hash, perceptual_hash or session_id is required"))
		return
	}
	if q.SessionID != uuid.Nil {
		sess, err := s.deps.Sessions.Get(c.Request.Context(), q.SessionID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if sess.UserID != userID(c) {
			s.fail(c, common.NewAppError("FORBIDDEN", "session belongs to another user", common.ErrForbidden))
			return
		}
	}
	c.JSON(http.StatusOK, s.deps.Detector.Check(c.Request.Context(), q))
}
