package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/tipy/pkg/logctx"
	"github.com/fatflowers/tipy/pkg/response"
	"github.com/fatflowers/tipy/pkg/tool"
)

const AdminTokenHeader = "X-Admin-Token"

// DJAuthMiddleware accepts "Authorization: Bearer <jwt>" and exposes the DJ
// id under logctx.GinDJIDKey and in the request context.
func DJAuthMiddleware(secret string, base *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		token, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "missing bearer token"))
			return
		}
		djID, err := tool.ParseDJToken(secret, strings.TrimSpace(token))
		if err != nil {
			logctx.FromGin(c, base).Infow("dj_auth_rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "invalid token"))
			return
		}

		c.Set(logctx.GinDJIDKey, djID)
		ctx := logctx.WithDJID(c.Request.Context(), djID)
		reqLogger := logctx.FromGin(c, base).With("dj_id", djID)
		c.Set(logctx.GinLoggerKey, reqLogger)
		c.Request = c.Request.WithContext(logctx.WithLogger(ctx, reqLogger))
		c.Next()
	}
}

// AdminTokenMiddleware guards operator endpoints with a static token. An
// empty configured token disables the admin surface.
func AdminTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(AdminTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, "unauthorized"))
			return
		}
		c.Next()
	}
}
