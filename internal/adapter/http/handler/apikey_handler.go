package handler

import (
	"custodial-wallet-backend/internal/adapter/http/dto"
	"custodial-wallet-backend/internal/adapter/http/middleware"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/pkg/apperror"
	"custodial-wallet-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// APIKeyHandler handles API key lifecycle endpoints. All routes require a JWT
// session; an API key cannot manage keys.
type APIKeyHandler struct {
	keySvc ports.APIKeyService
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(keySvc ports.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{keySvc: keySvc}
}

// Create handles POST /api/v1/keys/create.
func (h *APIKeyHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	var req dto.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.keySvc.Create(c.Request.Context(), ports.CreateAPIKeyRequest{
		UserID:      userID,
		Name:        req.Name,
		Permissions: req.Permissions,
		Expiry:      req.Expiry,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.APIKeyCreatedResponse{
		Key:    dto.ToAPIKeyResponse(result.Key),
		Secret: result.Secret,
	})
}

// Rollover handles POST /api/v1/keys/rollover.
func (h *APIKeyHandler) Rollover(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	var req dto.RolloverAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	keyID, err := uuid.Parse(req.KeyID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid key_id"))
		return
	}

	result, err := h.keySvc.Rollover(c.Request.Context(), userID, keyID, req.Expiry)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.APIKeyCreatedResponse{
		Key:    dto.ToAPIKeyResponse(result.Key),
		Secret: result.Secret,
	})
}

// Revoke handles POST /api/v1/keys/:id/revoke.
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid key id"))
		return
	}

	if err := h.keySvc.Revoke(c.Request.Context(), userID, keyID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"revoked": true})
}

// List handles GET /api/v1/keys.
func (h *APIKeyHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	keys, err := h.keySvc.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.APIKeyResponse, 0, len(keys))
	for i := range keys {
		items = append(items, dto.ToAPIKeyResponse(&keys[i]))
	}
	response.OK(c, items)
}
