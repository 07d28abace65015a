// Package server exposes the certificate token backend over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/menta2k/certificate-composer/internal/config"
	"github.com/menta2k/certificate-composer/internal/store"
	"github.com/menta2k/certificate-composer/pkg/caption"
)

// QR code size bounds in pixels.
const (
	minQRSize = 64
	maxQRSize = 2048
)

// TokenStore is the storage the server needs.
type TokenStore interface {
	Ping(ctx context.Context) error
	Create(ctx context.Context) (store.Token, error)
	Claim(ctx context.Context, token string) (store.Token, error)
	Complete(ctx context.Context, token string) error
	Record(ctx context.Context, token, donor, receiver string) (store.Token, error)
	List(ctx context.Context) ([]store.Token, error)
}

// Server handles token and certificate requests.
type Server struct {
	store  TokenStore
	cfg    config.ServerConfig
	logger *slog.Logger
	now    func() time.Time
}

// New creates a server. A nil logger discards output.
func New(s TokenStore, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.QRSize == 0 {
		cfg.QRSize = 256
	}
	return &Server{store: s, cfg: cfg, logger: logger, now: time.Now}
}

// Handler builds the gin engine with all routes registered.
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), cors())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes adds the backend routes to r.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", s.health)
	r.POST("/certificate", s.recordCertificate)

	tokens := r.Group("/tokens")
	{
		tokens.POST("", s.createToken)
		tokens.GET("", s.listTokens)
		tokens.GET("/:token", s.validateToken)
		tokens.DELETE("/:token", s.completeToken)
		tokens.GET("/:token/qr", s.tokenQR)
	}
}

// TokenURL is the composer page address for a token.
func (s *Server) TokenURL(token string) string {
	return strings.TrimRight(s.cfg.PublicURL, "/") + "/?token=" + token
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "timestamp": s.now().Format(time.RFC3339)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": s.now().Format(time.RFC3339)})
}

func (s *Server) createToken(c *gin.Context) {
	t, err := s.store.Create(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to create token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	s.logger.Info("token created", "token", t.Token)
	c.JSON(http.StatusCreated, gin.H{
		"token":      t.Token,
		"status":     t.Status,
		"created_at": t.CreatedAt.Format(time.RFC3339),
		"url":        s.TokenURL(t.Token),
	})
}

func (s *Server) validateToken(c *gin.Context) {
	t, err := s.store.Claim(c.Request.Context(), c.Param("token"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
		return
	case errors.Is(err, store.ErrAlreadyUsed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Token already used"})
		return
	case err != nil:
		s.logger.Error("failed to validate token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": t.Token, "status": t.Status, "valid": true})
}

func (s *Server) completeToken(c *gin.Context) {
	err := s.store.Complete(c.Request.Context(), c.Param("token"))
	switch {
	case errors.Is(err, store.ErrNotInUse):
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not found or not in use"})
		return
	case err != nil:
		s.logger.Error("failed to complete token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token marked as completed"})
}

func (s *Server) listTokens(c *gin.Context) {
	tokens, err := s.store.List(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list tokens", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

type certificateRequest struct {
	Token    string `json:"token" binding:"required"`
	Donor    string `json:"de"`
	Receiver string `json:"para"`
}

func (s *Server) recordCertificate(c *gin.Context) {
	var req certificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := s.store.Record(c.Request.Context(), req.Token, caption.Clean(req.Donor), caption.Clean(req.Receiver))
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not found"})
		return
	case errors.Is(err, store.ErrAlreadyUsed):
		c.JSON(http.StatusConflict, gin.H{"error": "Token already used"})
		return
	case err != nil:
		s.logger.Error("failed to record certificate", "token", req.Token, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record certificate"})
		return
	}
	s.logger.Info("certificate recorded", "token", t.Token)
	c.JSON(http.StatusOK, gin.H{"token": t.Token, "status": t.Status, "de": t.Donor, "para": t.Receiver})
}

func (s *Server) tokenQR(c *gin.Context) {
	size := s.cfg.QRSize
	if v := c.Query("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minQRSize || n > maxQRSize {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be an integer between 64 and 2048"})
			return
		}
		size = n
	}
	png, err := qrcode.Encode(s.TokenURL(c.Param("token")), qrcode.Medium, size)
	if err != nil {
		s.logger.Error("failed to encode qr code", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// cors allows the composer page, served from another origin, to call the backend.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
