package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAnyScope(t *testing.T) {
	ctx := WithScopes(context.Background(), []string{"a", "b"})
	assert.True(t, HasAnyScope(ctx, []string{"b"}))
	assert.True(t, HasAnyScope(ctx, []string{"z", "a"}))
	assert.False(t, HasAnyScope(ctx, []string{"z"}))
	assert.True(t, HasAnyScope(ctx, nil), "no requirement means pass")
	assert.False(t, HasAnyScope(context.Background(), []string{"a"}))
}

func TestRequireAnyScope(t *testing.T) {
	h := RequireAnyScope(ScopeAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/leads", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(WithScopes(req.Context(), []string{ScopeAdmin})))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(WithScopes(req.Context(), []string{"profile"})))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
