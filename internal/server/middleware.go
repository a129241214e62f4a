package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
)

const headerRequestID = "X-Request-ID"

// RequestLogger tags each request with an id and logs it when it completes.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if user := common.UserIDFromContext(c.Request.Context()); user != "" {
			attrs = append(attrs, "user_id", user)
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("http.request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("http.request", attrs...)
		default:
			logger.Info("http.request", attrs...)
		}
	}
}

// AuthJWT verifies an HS256 bearer token and makes its subject the caller.
// An empty secret disables the check.
func AuthJWT(secret string, logger *slog.Logger) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())

	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(strings.TrimSpace(strings.TrimPrefix(header, prefix)), claims, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err == nil && claims.Subject == "" {
			err = errors.New("token has no subject")
		}
		if err != nil {
			logger.Warn("http.auth_failed", "req_id", common.RequestIDFromContext(c.Request.Context()), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}

		c.Request = c.Request.WithContext(common.WithUserID(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

// SignToken issues an HS256 token for userID. Used by tooling and tests.
func SignToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// writeError maps err onto a status and a {"message"} body. Internal failures
// use fallback, or the error text when fallback is empty.
func writeError(c *gin.Context, err error, fallback string) {
	status := common.HTTPStatus(err)
	msg := common.UserMessage(err)
	if status == http.StatusInternalServerError || msg == "" {
		switch {
		case status != http.StatusInternalServerError:
			msg = http.StatusText(status)
		case fallback != "":
			msg = fallback
		default:
			msg = "internal error"
		}
	}
	c.JSON(status, gin.H{"message": msg})
}
