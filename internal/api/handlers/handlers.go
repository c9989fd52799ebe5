package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxigo/dispatch/internal/config"
	"github.com/taxigo/dispatch/internal/domain/payment"
	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/internal/service/dispatch"
	"github.com/taxigo/dispatch/internal/service/pricing"
	"github.com/taxigo/dispatch/pkg/auth"
	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
	"github.com/taxigo/dispatch/pkg/monitoring"
	paymentsvc "github.com/taxigo/dispatch/pkg/payment"
	"github.com/taxigo/dispatch/pkg/websocket"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Lifecycle *dispatch.Lifecycle
	Registry  *dispatch.Registry
	Directory *dispatch.Directory
	Gateway   *dispatch.Gateway
	Hub       *websocket.Hub

	Rides    ride.Repository
	Payments payment.Repository
	Pricing  *pricing.Service
	Provider paymentsvc.Provider

	Auth        *auth.Manager
	Idempotency IdempotencyCache
	Monitor     *monitoring.NewRelicApp
	Logger      *logger.Logger
	Config      *config.Config
}

// respondError maps an application error onto the HTTP surface.
func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := errors.From(err)
	if appErr.HTTPStatus() >= http.StatusInternalServerError {
		h.Logger.Error("Request failed",
			logger.String("path", c.FullPath()),
			logger.Err(err),
		)
	}
	c.JSON(appErr.HTTPStatus(), gin.H{
		"code":    appErr.Kind,
		"message": appErr.Message,
	})
}
