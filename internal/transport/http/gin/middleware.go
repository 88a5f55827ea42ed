package httpgin

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kirinyoku/eventhub-checkout/internal/domain"
	"github.com/kirinyoku/eventhub-checkout/internal/service/auth"
)

const (
	ctxRequestID      = "request_id"
	ctxSession        = "session"
	ctxSessionRevoked = "session_revoked"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}

		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set(ctxRequestID, reqID)

		c.Next()
	}
}

// CORS allows any origin without credentials, or the listed origins with
// credentials so the session cookie is sent.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{
			"GET", "POST", "PATCH", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Accept-Language",
			"Authorization",
			"X-Request-ID",
			"Idempotency-Key",
			"If-None-Match",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"ETag",
			"Cache-Control",
			"Idempotency-Key",
		},
		MaxAge: 12 * time.Hour,
	}

	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}

func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		reqID, _ := c.Get(ctxRequestID)

		attrs := []any{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", c.FullPath()),
			slog.String("ip", c.ClientIP()),
			slog.Any("request_id", reqID),
			slog.Duration("latency", time.Since(start)),
			slog.Int("bytes_out", c.Writer.Size()),
		}

		if sess, ok := sessionFrom(c); ok {
			attrs = append(attrs, slog.String("user_id", sess.User.ID))
		}

		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.Last().Error()))
			logger.Error("http", slog.Group("http", attrs...))
		} else {
			logger.Info("http", slog.Group("http", attrs...))
		}
	}
}

// SessionMiddleware loads the caller's session and rejects the request with
// 401 if there is none. A handler that saw EventHub reject the token marks
// the session revoked, and it is deleted once the handler returns.
func SessionMiddleware(authSvc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := authSvc.Load(c.Request.Context(), sessionID(c))
		if err != nil {
			respondErr(c, err)
			c.Abort()
			return
		}

		c.Set(ctxSession, sess)
		c.Next()

		if c.GetBool(ctxSessionRevoked) {
			if err := authSvc.Logout(context.WithoutCancel(c.Request.Context()), sess.ID); err != nil {
				_ = c.Error(err)
			}
		}
	}
}

// sessionID reads the session cookie, falling back to a bearer token for
// non-browser clients.
func sessionID(c *gin.Context) string {
	if sid, err := c.Cookie(sessionCookie); err == nil && sid != "" {
		return sid
	}

	if h := c.GetHeader("Authorization"); h != "" {
		if sid, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(sid)
		}
	}

	return ""
}

func sessionFrom(c *gin.Context) (*domain.Session, bool) {
	v, ok := c.Get(ctxSession)
	if !ok {
		return nil, false
	}

	sess, ok := v.(*domain.Session)
	return sess, ok
}

func setSessionCookie(c *gin.Context, sess *domain.Session, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sess.ID, int(time.Until(sess.ExpiresAt).Seconds()), "/", "", secure, true)
}

func clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
}
