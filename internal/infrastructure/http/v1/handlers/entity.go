package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/metadata"
)

// EntityLoader loads one instance through the read lifecycle.
// Implemented by domain.Service.
type EntityLoader interface {
	Registry() *metadata.Registry
	Load(ctx context.Context, class string, objectID id.ID, include ...metadata.Include) (*entity.Instance, error)
}

// EntityResponse is the stored state of one instance.
type EntityResponse struct {
	Class  string            `json:"class"`
	ID     id.ID             `json:"id"`
	Values entity.Attributes `json:"values"`
}

// EntityHandler serves instance reads.
type EntityHandler struct {
	*BaseHandler
	loader EntityLoader
}

func NewEntityHandler(base *BaseHandler, loader EntityLoader) *EntityHandler {
	return &EntityHandler{
		BaseHandler: base,
		loader:      loader,
	}
}

// Get returns the persisted values of one instance.
// GET /api/v1/entities/:class/:id
func (h *EntityHandler) Get(c *gin.Context) {
	class := c.Param("class")
	if _, ok := h.loader.Registry().Get(class); !ok {
		h.HandleError(c, apperror.NewNotFound("class", class))
		return
	}
	objectID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.HandleError(c, apperror.NewValidation("invalid id").WithDetail("id", c.Param("id")))
		return
	}

	inst, err := h.loader.Load(c.Request.Context(), class, objectID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, EntityResponse{Class: inst.Class(), ID: inst.ID(), Values: inst.Values()})
}
