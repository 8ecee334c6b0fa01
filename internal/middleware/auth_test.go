package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authCookie(t *testing.T, m *AuthMiddleware, userID int64) *http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	m.SetAuthCookie(w, userID)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies, "no cookies set by SetAuthCookie")
	return cookies[0]
}

func TestAuthMiddleware_WithValidCookie(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok, "principal not in context")
		assert.Equal(t, int64(42), p.UserID)
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.AddCookie(authCookie(t, m, 42))

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	assert.True(t, nextCalled, "next handler was not called")
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	other := NewAuthMiddleware("other-secret")

	expired := NewAuthMiddleware("test-secret")
	expired.now = func() time.Time { return time.Now().Add(-2 * authCookieTTL) }

	tests := []struct {
		name   string
		cookie *http.Cookie
	}{
		{name: "without cookie"},
		{name: "foreign signature", cookie: authCookie(t, other, 42)},
		{name: "expired", cookie: authCookie(t, expired, 42)},
		{name: "tampered id", cookie: func() *http.Cookie {
			c := authCookie(t, m, 42)
			c.Value = "7" + c.Value[2:]
			return c
		}()},
		{name: "garbage", cookie: &http.Cookie{Name: authCookieName, Value: "not-a-token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.cookie != nil {
				r.AddCookie(tt.cookie)
			}

			m.Middleware(next).ServeHTTP(w, r)

			assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
		})
	}
}
