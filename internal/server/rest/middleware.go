package rest

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info(c.Request.Context(), "HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", s.corsOrigin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if s.corsOrigin != "*" {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// bodyLimitMiddleware caps request bodies at maxUploadSize.
func (s *Server) bodyLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.maxUploadSize <= 0 || c.Request.Body == nil {
			c.Next()
			return
		}
		if c.Request.ContentLength > s.maxUploadSize {
			s.fail(c, s.tooLarge())
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize)
		c.Next()
	}
}

func (s *Server) tooLarge() error {
	return common.Errorf(common.ErrorTooLarge, "file too large, the maximum allowed size is %s", humanSize(s.maxUploadSize))
}

func humanSize(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}

// authMiddleware resolves the bearer token or the token cookie to an actor.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if token == "" {
			token, _ = c.Cookie(common.TokenCookieName)
		}
		if token == "" {
			s.fail(c, notAuthorized())
			return
		}

		actor, err := s.users.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrTokenExpired):
				s.fail(c, common.Errorf(common.ErrTokenExpired, "token expired"))
			case statusOf(err) == http.StatusUnauthorized:
				s.fail(c, notAuthorized())
			default:
				s.fail(c, err)
			}
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func notAuthorized() error {
	return common.Errorf(common.ErrorUnauthorized, "not authorized to access this route")
}

func bearerToken(header string) string {
	if !strings.HasPrefix(header, common.BearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, common.BearerPrefix))
}

func actorFrom(c *gin.Context) models.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(models.Actor)
	return actor
}

// loginLimitMiddleware throttles login attempts per client IP. Limiter
// failures let the request through.
func (s *Server) loginLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.limiter.Allow(c.Request.Context(), "login:"+c.ClientIP())
		if err != nil {
			s.logger.Warn(c.Request.Context(), "login rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			s.fail(c, common.Errorf(common.ErrorRateLimited, "too many login attempts, please try again later"))
			return
		}
		c.Next()
	}
}
