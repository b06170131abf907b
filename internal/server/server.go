// Package server exposes the stock-take HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joseph-ayodele/stocktake/internal/capture"
	"github.com/joseph-ayodele/stocktake/internal/common"
	"github.com/joseph-ayodele/stocktake/internal/dedupe"
	"github.com/joseph-ayodele/stocktake/internal/entity"
	"github.com/joseph-ayodele/stocktake/internal/export"
	"github.com/joseph-ayodele/stocktake/internal/repository"
	"github.com/joseph-ayodele/stocktake/internal/session"
	"github.com/joseph-ayodele/stocktake/internal/worker"
)

// Pinger reports whether the database answers.
type Pinger interface {
	HealthCheck(ctx context.Context, timeout time.Duration) error
}

// Deps are the services behind the handlers.
type Deps struct {
	Jobs        repository.OCRJobRepository
	Rolls       repository.CountedRollRepository
	Sessions    *session.Manager
	Controllers *session.Registry
	Detector    *dedupe.Detector
	Worker      *worker.Worker
	Capture     *capture.Service
	Export      *export.Service
	DB          Pinger
}

type Config struct {
	WorkerSecret string
	JWTSecret    string
	Issuer       string
}

type Server struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	engine *gin.Engine
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.engine = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(s.logger), Recovery(), RequestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	workerAPI := api.Group("/ocr", WorkerSecret(s.cfg.WorkerSecret))
	workerAPI.POST("/process", s.processBatch)
	workerAPI.POST("/jobs/:id/reset", s.resetJob)

	authed := api.Group("", Auth(s.cfg.JWTSecret, s.cfg.Issuer))
	authed.POST("/duplicates/check", s.checkDuplicate)

	sessions := authed.Group("/sessions")
	sessions.POST("", s.startSession)
	sessions.GET("/:id", s.getSession)
	sessions.POST("/:id/activity", s.recordActivity)
	sessions.POST("/:id/end", s.endSession)
	sessions.POST("/:id/cancel", s.cancelSession)
	sessions.GET("/:id/ws", s.sessionEvents)
	sessions.POST("/:id/rolls", s.captureRoll)
	sessions.GET("/:id/rolls", s.listRolls)
	sessions.GET("/:id/export", s.exportSession)

	return r
}

func (s *Server) health(c *gin.Context) {
	if s.deps.DB != nil {
		if err := s.deps.DB.HealthCheck(c.Request.Context(), 2*time.Second); err != nil {
			requestLogger(c).Error("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail writes err as JSON with the status its sentinel maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := common.HTTPStatus(err)
	msg := err.Error()
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		requestLogger(c).Error("request failed", "err", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "request_id": c.GetString(ctxRequestID)})
}

func badRequest(msg string) error {
	return common.NewAppError("INVALID_INPUT", msg, common.ErrInvalidInput)
}

func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, badRequest("id must be a UUID")
	}
	return id, nil
}

// ownedSession loads the session in the path and checks it belongs to the
// caller.
func (s *Server) ownedSession(c *gin.Context) (*entity.CountSession, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}
	sess, err := s.deps.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID(c) {
		return nil, common.NewAppError("FORBIDDEN", "session belongs to another user", common.ErrForbidden)
	}
	return sess, nil
}
