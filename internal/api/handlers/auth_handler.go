package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taxigo/dispatch/internal/api/dto"
	"github.com/taxigo/dispatch/pkg/errors"
)

// IssueToken handles POST /v1/auth/token. Development helper only: real
// deployments put a proper identity service in front of this API.
func (h *Handlers) IssueToken(c *gin.Context) {
	if h.Config.Server.Env == "production" {
		h.respondError(c, errors.Unauthorized("token endpoint disabled in production"))
		return
	}

	var req dto.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, errors.Validation("invalid token payload"))
		return
	}

	token, err := h.Auth.Issue(req.Subject, req.Role)
	if err != nil {
		h.respondError(c, errors.Dependency("failed to sign token", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}
