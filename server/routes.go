// Package server exposes the pipeline over HTTP: transaction verification
// for the storefront UI and the wallet-verified event feed from the
// identity collaborator.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	presale "github.com/vitwit/presale"
	"github.com/vitwit/presale/logger"
	"github.com/vitwit/presale/types"
)

// Server holds the HTTP handlers over the presale facade.
type Server struct {
	app      *presale.Presale
	validate *validator.Validate
	log      logger.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(app *presale.Presale, log logger.Logger, enableMetrics bool) *gin.Engine {
	if log == nil {
		log = logger.NoopLogger{}
	}
	s := &Server{
		app:      app,
		validate: validator.New(),
		log:      log,
	}

	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	{
		api.POST("/verify", s.handleVerify)
		api.POST("/check-status", s.handleCheckStatus)
		api.POST("/wallet-verified", s.handleWalletVerified)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if enableMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}

// handleVerify drives a submitted reference to a terminal outcome and
// settles the referral bonus. Idempotent: repeating the call with the
// same reference returns the recorded outcome without re-crediting.
// The verification context is detached from the request: a transaction
// already broadcast cannot be un-sent, so the poll runs to completion
// even if the UI stops watching.
func (s *Server) handleVerify(c *gin.Context) {
	var req types.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	ref := types.TransactionReference{
		Ref:      req.Reference,
		Network:  types.Network(req.Network),
		Currency: types.Currency(req.Currency),
	}
	if err := ref.Validate(); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	result, err := s.app.VerifyAndSettle(ctx, &req)
	if err != nil {
		s.log.Error("verification failed", map[string]any{
			"reference": req.Reference,
			"error":     err.Error(),
		})
		errorJSON(c, http.StatusInternalServerError, "verification failed")
		return
	}

	successJSON(c, result)
}

type checkStatusRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// handleCheckStatus is the ledger-only fast path; no chain traffic.
func (s *Server) handleCheckStatus(c *gin.Context) {
	var req checkStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	result, err := s.app.CheckStatus(c.Request.Context(), req.Reference)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "status lookup failed")
		return
	}
	successJSON(c, result)
}

type walletVerifiedEvent struct {
	UserID        string `json:"userId" validate:"required"`
	WalletAddress string `json:"walletAddress" validate:"required"`
}

// handleWalletVerified consumes the identity collaborator's event and
// drains the referrer's pending bonus backlog.
func (s *Server) handleWalletVerified(c *gin.Context) {
	var event walletVerifiedEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&event); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	report, err := s.app.OnWalletVerified(ctx, event.UserID, event.WalletAddress)
	if err != nil {
		s.log.Error("reconciliation failed", map[string]any{
			"user":  event.UserID,
			"error": err.Error(),
		})
		errorJSON(c, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	successJSON(c, report)
}
