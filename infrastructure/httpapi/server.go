// Package httpapi exposes the reward engine over HTTP using gin.
//
// Routes:
//
//	POST /v1/rewards  - score a batch of responses
//	POST /v1/extract  - run answer extraction only
//	GET  /v1/kinds    - list the supported verifier kinds
//	GET  /healthz     - liveness probe
//	GET  /metrics     - Prometheus exposition, when a handler is supplied
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-reward/internal/application"
	"github.com/ahrav/go-reward/internal/domain"
	"github.com/ahrav/go-reward/internal/observability"
	"github.com/ahrav/go-reward/internal/ports"
)

// shutdownTimeout bounds how long Run waits for in-flight requests.
const shutdownTimeout = 10 * time.Second

// Scorer is the slice of the reward system the HTTP front end needs.
// *application.RewardSystem satisfies it.
type Scorer interface {
	Evaluate(ctx context.Context, batch domain.Batch, opts application.EvaluateOptions) (*application.Result, error)
	ExtractAnswers(ctx context.Context, answers, datasources []string) ([]domain.Answer, error)
	Kinds() []string
}

// RewardsRequest is the body of POST /v1/rewards.
type RewardsRequest struct {
	domain.Batch
	Log             bool `json:"log"`
	Iteration       int  `json:"current_iteration"`
	ReturnExtracted bool `json:"return_extracted"`
}

// RewardsResponse is the body returned by POST /v1/rewards. The extracted
// lists are present only when the request asked for them.
type RewardsResponse struct {
	Rewards    []float64       `json:"rewards"`
	Extracted  []domain.Answer `json:"extracted_answers,omitempty"`
	References []domain.Answer `json:"extracted_gt_answers,omitempty"`
}

// ExtractRequest is the body of POST /v1/extract.
type ExtractRequest struct {
	Answers     []string `json:"answers" binding:"required"`
	Datasources []string `json:"datasources" binding:"required"`
}

// ExtractResponse is the body returned by POST /v1/extract.
type ExtractResponse struct {
	Extracted []domain.Answer `json:"extracted_answers"`
}

// Server routes HTTP requests to a Scorer.
type Server struct {
	scorer Scorer
	logger *observability.Logger
	engine *gin.Engine
}

// NewServer builds the router. metrics may be nil, in which case /metrics is
// not registered.
func NewServer(scorer Scorer, metrics http.Handler, logger *observability.Logger) *Server {
	if logger == nil {
		logger = observability.Discard()
	}
	s := &Server{scorer: scorer, logger: logger, engine: gin.New()}
	s.engine.Use(gin.Recovery(), s.accessLog())

	s.engine.GET("/healthz", s.handleHealth)
	if metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(metrics))
	}
	v1 := s.engine.Group("/v1")
	v1.POST("/rewards", s.handleRewards)
	v1.POST("/extract", s.handleExtract)
	v1.GET("/kinds", s.handleKinds)
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("reward api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleKinds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"kinds": s.scorer.Kinds()})
}

func (s *Server) handleRewards(c *gin.Context) {
	var req RewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	res, err := s.scorer.Evaluate(c.Request.Context(), req.Batch, application.EvaluateOptions{
		Log:       req.Log,
		Iteration: req.Iteration,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := RewardsResponse{Rewards: res.Rewards}
	if req.ReturnExtracted {
		resp.Extracted = res.Extracted
		resp.References = res.References
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleExtract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	out, err := s.scorer.ExtractAnswers(c.Request.Context(), req.Answers, req.Datasources)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ExtractResponse{Extracted: out})
}

// fail maps caller and configuration errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var batchErr *domain.BatchError
	var cfgErr *ports.ConfigError
	switch {
	case errors.As(err, &batchErr), errors.Is(err, domain.ErrMixedDatasources):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrUnknownDatasource), errors.As(err, &cfgErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// accessLog replaces gin.Logger with the structured logger.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
