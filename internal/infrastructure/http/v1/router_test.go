package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisorcrm/internal/core/apperror"
	"advisorcrm/internal/core/entity"
	"advisorcrm/internal/core/id"
	"advisorcrm/internal/domain/crm"
	"advisorcrm/internal/infrastructure/http/v1/handlers"
	"advisorcrm/internal/infrastructure/http/v1/middleware"
	"advisorcrm/internal/metadata"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	reg, err := crm.NewRegistry(nil)
	require.NoError(t, err)
	return NewRouter(RouterConfig{Registry: reg})
}

func get(t *testing.T, r http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListClasses(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/v1/meta", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Classes []handlers.ClassSummary `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	names := make([]string, 0, len(body.Classes))
	for _, c := range body.Classes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		crm.ClassHousehold, crm.ClassContact, crm.ClassAccount, crm.ClassActivity, crm.ClassActivityParticipant,
	}, names)

	contact := body.Classes[1]
	assert.Equal(t, "contacts", contact.Table)
	assert.Contains(t, contact.Persisted, "firstName")
	assert.ElementsMatch(t, []string{"email", "taxId"}, contact.Encrypted)
}

func TestGetClass(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/v1/meta/Contact", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var view metadata.ClassView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, crm.ClassContact, view.Name)

	fields := make(map[string]metadata.FieldView, len(view.Fields))
	for _, f := range view.Fields {
		fields[f.Name] = f
	}
	full := fields["fullName"]
	assert.Equal(t, metadata.FieldCalculated, full.Kind)
	assert.Equal(t, []string{"firstName", "lastName"}, full.Dependencies)
	assert.True(t, fields["firstName"].Required)
	require.NotNil(t, fields["taxId"].Encryption)
	assert.True(t, fields["taxId"].Encryption.Unique)
	assert.Contains(t, view.Hooks, "create.before")
}

func TestGetClass_Unknown(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/v1/meta/Portfolio", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeNotFound, body["code"])
}

func TestWriteOrder(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/v1/schema/order", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Order []string `json:"order"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Order, 5)
	assert.Equal(t, crm.ClassHousehold, body.Order[0])
}

func TestTraceHeaders(t *testing.T) {
	r := newTestRouter(t)

	w := get(t, r, "/api/v1/meta", map[string]string{middleware.HeaderRequestID: "req-42"})
	assert.Equal(t, "req-42", w.Header().Get(middleware.HeaderRequestID))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderTraceID))

	w = get(t, r, "/api/v1/meta", nil)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))
}

func TestHealthRoutesNeedPool(t *testing.T) {
	w := get(t, newTestRouter(t), "/health/live", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// stubLoader serves stored households by id.
type stubLoader struct {
	reg  *metadata.Registry
	rows map[id.ID]map[string]any
}

func (s *stubLoader) Registry() *metadata.Registry { return s.reg }

func (s *stubLoader) Load(_ context.Context, class string, objectID id.ID, _ ...metadata.Include) (*entity.Instance, error) {
	row, ok := s.rows[objectID]
	if !ok {
		return nil, apperror.NewNotFound(class, objectID)
	}
	return entity.Hydrate(s.reg.MustGet(class), row)
}

func TestGetEntity(t *testing.T) {
	reg, err := crm.NewRegistry(nil)
	require.NoError(t, err)
	hh := id.New()
	loader := &stubLoader{reg: reg, rows: map[id.ID]map[string]any{hh: {"id": hh, "name": "Rivera"}}}
	r := NewRouter(RouterConfig{Registry: reg, Entities: loader})

	tests := []struct {
		name string
		path string
		code int
	}{
		{"stored", "/api/v1/entities/Household/" + hh.String(), http.StatusOK},
		{"missing", "/api/v1/entities/Household/" + id.New().String(), http.StatusNotFound},
		{"unknown class", "/api/v1/entities/Portfolio/" + hh.String(), http.StatusNotFound},
		{"bad id", "/api/v1/entities/Household/nope", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, r, tt.path, nil)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	w := get(t, r, "/api/v1/entities/Household/"+hh.String(), nil)
	var body handlers.EntityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, crm.ClassHousehold, body.Class)
	assert.Equal(t, hh, body.ID)
	assert.Equal(t, "Rivera", body.Values["name"])
}

func TestEntityRoutesNeedLoader(t *testing.T) {
	w := get(t, newTestRouter(t), "/api/v1/entities/Household/"+id.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
