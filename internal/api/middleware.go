package api

import (
	"net/http"
	"strings"
	"time"

	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Constants for context keys
const (
	ContextUserIDKey   = "userId"
	ContextRoleUserKey = "roleUser"
	contextActorKey    = "actor"
)

const accessTokenHeader = "x-access-token"

// tokenFromRequest looks in the cookie, the x-access-token header, the
// Authorization header and finally the token query parameter (websockets
// cannot set headers from a browser).
func tokenFromRequest(c *gin.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	if token := c.GetHeader(accessTokenHeader); token != "" {
		return token
	}
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(authService service.AuthService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, err := authService.ParseToken(tokenFromRequest(c, cookieName))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, service.PublicMessage(err))
			return
		}

		// Set user information in the context for downstream handlers
		c.Set(ContextUserIDKey, actor.ID.Hex())
		c.Set(ContextRoleUserKey, actor.Scopes)
		c.Set(contextActorKey, *actor)
		c.Next()
	}
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

// RequireScopes rejects callers whose scopes do not intersect allowed.
// Must run AFTER AuthMiddleware.
func RequireScopes(allowed ...domain.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFromContext(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, service.PublicMessage(service.ErrMissingToken))
			return
		}
		if !domain.HasAnyScope(actor.Scopes, allowed...) {
			abortWithError(c, http.StatusForbidden, service.PublicMessage(service.ErrForbidden))
			return
		}
		c.Next()
	}
}

// actorFromContext returns the caller set by AuthMiddleware.
func actorFromContext(c *gin.Context) (service.Actor, bool) {
	raw, exists := c.Get(contextActorKey)
	if !exists {
		return service.Actor{}, false
	}
	actor, ok := raw.(service.Actor)
	return actor, ok
}

// RequestLogger logs one line per request.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}
		if userID := c.GetString(ContextUserIDKey); userID != "" {
			fields["userId"] = userID
		}
		entry := log.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

var statusByKind = map[service.Kind]int{
	service.KindValidation:     http.StatusBadRequest,
	service.KindAuthentication: http.StatusUnauthorized,
	service.KindAuthorization:  http.StatusForbidden,
	service.KindNotFound:       http.StatusNotFound,
	service.KindConflict:       http.StatusConflict,
	service.KindDependency:     http.StatusInternalServerError,
	service.KindInternal:       http.StatusInternalServerError,
}

// errorResponder maps service errors onto HTTP responses.
type errorResponder struct {
	log *logrus.Logger
}

func (r errorResponder) respond(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := statusByKind[kind]
	if status >= http.StatusInternalServerError {
		r.log.WithError(err).WithFields(logrus.Fields{
			"kind":   kind.String(),
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	abortWithError(c, status, service.PublicMessage(err))
}
