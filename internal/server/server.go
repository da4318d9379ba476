// Package server exposes the gateway's HTTP surface: the bank payment
// callback and a health probe.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"starmf-gateway/internal/services"
)

// Server is the HTTP callback surface.
type Server struct {
	payments *services.PaymentService
	logger   zerolog.Logger
	http     *http.Server
}

// New creates the HTTP server.
func New(addr string, payments *services.PaymentService, logger zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		payments: payments,
		logger:   logger,
		http: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	engine.GET("/healthz", s.handleHealth)
	engine.POST("/callbacks/payment", s.handlePaymentCallback)

	return s
}

// Run starts serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Run() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePaymentCallback applies a bank payment notification. Banks are not
// consistent about field casing, so the body is matched case-insensitively.
// Unknown orders are acknowledged with processed=false so the bank stops
// retrying a callback we can never apply.
func (s *Server) handlePaymentCallback(c *gin.Context) {
	var raw map[string]interface{}
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	cb := services.Callback{
		OrderNumber:    lookupString(raw, "OrderNumber", "OrderNo"),
		Status:         lookupString(raw, "Status"),
		TransactionRef: lookupString(raw, "TransactionRef", "TxnRef"),
		Message:        lookupString(raw, "Message", "Remarks"),
	}
	if cb.OrderNumber == "" || cb.Status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "orderNumber and status are required"})
		return
	}

	processed, err := s.payments.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		s.logger.Error().Err(err).
			Str("order_number", cb.OrderNumber).
			Msg("Payment callback failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "callback processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"processed": processed})
}

// lookupString finds the first of the candidate keys in the body, matching
// key names case-insensitively.
func lookupString(raw map[string]interface{}, keys ...string) string {
	for _, want := range keys {
		for k, v := range raw {
			if strings.EqualFold(k, want) {
				if str, ok := v.(string); ok {
					return str
				}
			}
		}
	}
	return ""
}
