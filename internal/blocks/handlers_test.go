package blocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimdaga/givethnotes/internal/apierr"
	"github.com/jimdaga/givethnotes/internal/auth"
	"github.com/jimdaga/givethnotes/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(store *Store, userID uint) *gin.Engine {
	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		if userID != 0 {
			c.Set(auth.ContextUserID, userID)
		}
		c.Next()
	})
	RegisterRoutes(api, store)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBlockHandlersLifecycle(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f.store, f.user.ID)
	base := fmt.Sprintf("/api/journal-entries/%d/blocks", f.entry.ID)

	for _, text := range []string{"one", "two", "three"} {
		w := do(r, http.MethodPost, base, fmt.Sprintf(`{"type":"notes","content":{"text":%q}}`, text))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(r, http.MethodPut, base+"/2", `{"content":{"text":"TWO"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodDelete, base+"/1", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)

	var blocks []models.EntryBlock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &blocks))
	assert.Equal(t, []int{1, 2}, positions(blocks))
	assert.Equal(t, []string{"TWO", "three"}, texts(t, blocks))
}

func TestAppendToCareerPathHandler(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f.store, f.user.ID)

	w := do(r, http.MethodPost, fmt.Sprintf("/api/career-paths/%d/blocks", f.path.ID), `{"type":"heading","content":{"text":"Today"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var block models.EntryBlock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &block))
	assert.Equal(t, f.entry.ID, block.EntryID)
	assert.Equal(t, 1, block.Position)
}

func TestBlockHandlerErrors(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f.store, f.user.ID)
	base := fmt.Sprintf("/api/journal-entries/%d/blocks", f.entry.ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"invalid type", http.MethodPost, base, `{"type":"video","content":{}}`, http.StatusBadRequest, "invalid_request"},
		{"missing content", http.MethodPost, base, `{"type":"notes"}`, http.StatusBadRequest, "invalid_request"},
		{"malformed body", http.MethodPost, base, `{`, http.StatusBadRequest, "invalid_request"},
		{"bad position", http.MethodDelete, base + "/zero", "", http.StatusBadRequest, "invalid_request"},
		{"missing position", http.MethodDelete, base + "/9", "", http.StatusNotFound, "not_found"},
		{"update missing", http.MethodPut, base + "/9", `{"content":{"text":"x"}}`, http.StatusNotFound, "not_found"},
		{"unknown entry", http.MethodGet, "/api/journal-entries/999/blocks", "", http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())

			var env apierr.ErrorEnvelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestBlockHandlersRequireUser(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f.store, 0)

	w := do(r, http.MethodGet, fmt.Sprintf("/api/journal-entries/%d/blocks", f.entry.ID), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
