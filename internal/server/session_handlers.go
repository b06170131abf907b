package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
)

type sessionResponse struct {
	Session        any  `json:"session"`
	Resumed        bool `json:"resumed"`
	TimeoutSeconds int  `json:"timeout_seconds"`
	Expiring       bool `json:"expiring"`
}

// startSession resumes the caller's open session or starts a new one, and
// arms its inactivity clock.
func (s *Server) startSession(c *gin.Context) {
	sess, resumed, err := s.deps.Sessions.StartOrResume(c.Request.Context(), userID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	ctrl := s.deps.Controllers.Ensure(sess.ID)

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	c.JSON(status, sessionResponse{
		Session:        sess,
		Resumed:        resumed,
		TimeoutSeconds: int(ctrl.Timeout().Seconds()),
		Expiring:       ctrl.Expiring(),
	})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	resp := sessionResponse{Session: sess}
	if ctrl, ok := s.deps.Controllers.Get(sess.ID); ok {
		resp.TimeoutSeconds = int(ctrl.Timeout().Seconds())
		resp.Expiring = ctrl.Expiring()
	}
	c.JSON(http.StatusOK, resp)
}

type activityRequest struct {
	Event constants.ActivityEvent `json:"event" binding:"required"`
}

// recordActivity feeds one interaction event into the session's clock.
func (s *Server) recordActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("event is required"))
		return
	}
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !sess.Status.Resumable() {
		c.JSON(http.StatusConflict, gin.H{"error": "session is " + string(sess.Status)})
		return
	}
	ctrl := s.deps.Controllers.Ensure(sess.ID)
	reset := ctrl.RecordActivity(req.Event)
	c.JSON(http.StatusOK, gin.H{"reset": reset, "expiring": ctrl.Expiring()})
}

func (s *Server) endSession(c *gin.Context) {
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Sessions.End(c.Request.Context(), sess.ID); err != nil {
		s.fail(c, err)
		return
	}
	s.deps.Controllers.Remove(sess.ID)
	s.respondClosed(c, sess.ID)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelSession(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(c, badRequest("invalid body"))
		return
	}
	sess, err := s.ownedSession(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.deps.Sessions.Cancel(c.Request.Context(), sess.ID, req.Reason); err != nil {
		s.fail(c, err)
		return
	}
	s.deps.Controllers.Remove(sess.ID)
	s.respondClosed(c, sess.ID)
}

func (s *Server) respondClosed(c *gin.Context, id uuid.UUID) {
	sess, err := s.deps.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	requestLogger(c).Info("count session closed", "session_id", id, "status", sess.Status)
	c.JSON(http.StatusOK, sessionResponse{Session: sess})
}
