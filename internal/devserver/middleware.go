package devserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gradcompass/interview/internal/auth"
	"github.com/gradcompass/interview/internal/wire"
	"github.com/gradcompass/interview/pkg/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	ctxRequestID    = "requestID"
	ctxUserID       = "userID"
)

// requestIDMiddleware tags every request with an id, reusing the caller's
// when present.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" && !strings.Contains(raw, "token=") {
			path = path + "?" + raw
		}

		c.Next()

		logger.Infof("[%s] %s - %d (%v) id=%s",
			c.Request.Method, path, c.Writer.Status(), time.Since(start), c.GetString(ctxRequestID))
	}
}

// authMiddleware validates the bearer token and stores the user id.
func authMiddleware(jwt *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		userID, ok := verifyUser(jwt, parts[1])
		if !ok {
			abort(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// getUserID extracts the user id set by authMiddleware.
func getUserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, wire.ErrorResponse{Detail: detail})
}

// verifyUser maps a token to the user id it was issued for.
func verifyUser(jwt *auth.JWTManager, token string) (int64, bool) {
	claims, err := jwt.VerifyToken(token)
	if err != nil {
		return 0, false
	}
	return parseID(claims.Subject)
}
