package api

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const sessionTTL = 24 * time.Hour

type session struct {
	userID    int64
	expiresAt time.Time
}

var (
	sessionMu sync.RWMutex
	sessions  = make(map[string]session)
)

// randomID returns n random bytes as hex.
func randomID(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateToken issues an opaque session token for a logged-in user.
func GenerateToken(userID int64) (string, error) {
	token, err := randomID(32)
	if err != nil {
		return "", err
	}
	sessionMu.Lock()
	sessions[token] = session{userID: userID, expiresAt: time.Now().Add(sessionTTL)}
	sessionMu.Unlock()
	return token, nil
}

// AuthMiddleware rejects requests without a live session token.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		sessionMu.RLock()
		sess, ok := sessions[token]
		sessionMu.RUnlock()

		if !ok || time.Now().After(sess.expiresAt) {
			if ok {
				sessionMu.Lock()
				delete(sessions, token)
				sessionMu.Unlock()
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("user_id", sess.userID)
		c.Next()
	}
}
