package handlers

import (
	"github.com/gin-gonic/gin"

	"advisorcrm/internal/metadata"
)

// ClassSummary is one entry of the class listing.
type ClassSummary struct {
	Name      string   `json:"name"`
	Table     string   `json:"table"`
	Persisted []string `json:"persisted"`
	Encrypted []string `json:"encrypted,omitempty"`
}

// MetadataHandler serves the read-only class registry.
type MetadataHandler struct {
	*BaseHandler
	registry *metadata.Registry
}

func NewMetadataHandler(base *BaseHandler, registry *metadata.Registry) *MetadataHandler {
	return &MetadataHandler{
		BaseHandler: base,
		registry:    registry,
	}
}

// ListClasses returns every registered class in registration order.
// GET /api/v1/meta
func (h *MetadataHandler) ListClasses(c *gin.Context) {
	names := h.registry.Classes()
	out := make([]ClassSummary, 0, len(names))
	for _, name := range names {
		meta := h.registry.MustGet(name)
		s := ClassSummary{Name: name, Table: meta.Table(), Persisted: meta.Persisted()}
		for _, m := range meta.EncryptedFields() {
			s.Encrypted = append(s.Encrypted, m.Field)
		}
		out = append(out, s)
	}
	h.OK(c, gin.H{"classes": out})
}

// GetClass returns the full description of one class.
// GET /api/v1/meta/:class
func (h *MetadataHandler) GetClass(c *gin.Context) {
	view, err := h.registry.Describe(c.Param("class"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, view)
}

// WriteOrder returns classes in the order a batch writes them.
// GET /api/v1/schema/order
func (h *MetadataHandler) WriteOrder(c *gin.Context) {
	order, err := h.registry.DependencyOrder()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.OK(c, gin.H{"order": order})
}
