package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/aurum/internal/actorcontext"
	"github.com/smallbiznis/aurum/internal/authorization"
)

// HashAPIKey returns the hex sha256 of a raw api key, the form AUTH_API_KEYS stores.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// APIKeyRequired resolves the bearer api key to a role and stores the actor on the request context.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := HashAPIKey(parts[1])
		role, ok := s.lookupRole(hash)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := actorcontext.WithActor(c.Request.Context(), actorcontext.Actor{
			ID:   "key:" + hash[:12],
			Role: role,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) lookupRole(hash string) (string, bool) {
	for stored, role := range s.cfg.AuthAPIKeys {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(hash)) == 1 {
			return role, true
		}
	}
	return "", false
}

func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), object, action); err != nil {
			if errors.Is(err, authorization.ErrInvalidActor) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}
