package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/tool"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(zap.NewNop().Sugar()))
	r.GET("/me", DJAuthMiddleware("secret", zap.NewNop().Sugar()), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(logctx.GinDJIDKey)+"|"+logctx.DJID(c.Request.Context()))
	})
	r.GET("/admin", AdminTokenMiddleware("tok"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestDJAuthMiddleware(t *testing.T) {
	r := newAuthRouter()
	tok, err := tool.SignDJToken("secret", "dj-1", time.Now(), time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "dj-1|dj-1", w.Body.String())
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer not-a-token"} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, header)
	}
}

func TestAdminTokenMiddleware(t *testing.T) {
	r := newAuthRouter()

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminTokenHeader, "tok")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set(AdminTokenHeader, "nope")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminTokenMiddleware_DisabledWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AdminTokenMiddleware(""), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTraceMiddleware_KeepsIncomingID(t *testing.T) {
	r := newAuthRouter()
	r.GET("/trace", func(c *gin.Context) { c.String(http.StatusOK, logctx.TraceID(c.Request.Context())) })

	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "abc-123", w.Body.String())
	require.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}
