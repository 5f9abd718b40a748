// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on checkout requests. The
// booking service owns the actual dedup semantics; this middleware only
// rejects malformed keys early and stashes the value in the Gin context so
// handlers do not re-read the header.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderIdempotencyKey is the request header carrying the client key.
	HeaderIdempotencyKey = "Idempotency-Key"
	// idempotencyKeyCtx is the Gin context key under which the value is stored.
	idempotencyKeyCtx = "idempotencyKey"
	// maxIdempotencyKeyLen bounds header size to keep the unique index small.
	maxIdempotencyKeyLen = 128
)

// idempotencyKeyPattern accepts opaque client tokens (UUIDs, ULIDs, and
// similar) without being prescriptive about the format.
var idempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// IdempotencyKey validates the shape of an Idempotency-Key header when one is
// present. The header is optional: requests without it skip the dedup guard
// entirely. Malformed keys are rejected with 400 before reaching the handler.
func IdempotencyKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		switch {
		case len(key) > maxIdempotencyKeyLen:
			abortIdempotency(c, "Idempotency-Key too long")
			return
		case !idempotencyKeyPattern.MatchString(key):
			abortIdempotency(c, "Idempotency-Key contains invalid characters")
			return
		}
		c.Set(idempotencyKeyCtx, key)
		c.Next()
	}
}

// IdempotencyKeyFrom returns the validated key stashed by IdempotencyKey,
// or "" when no key was supplied.
func IdempotencyKeyFrom(c *gin.Context) string {
	if v, ok := c.Get(idempotencyKeyCtx); ok {
		return asString(v)
	}
	return ""
}

func abortIdempotency(c *gin.Context, msg string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"request_id": asString(rid),
		"code":       "invalid_idempotency_key",
		"message":    msg,
	})
}
