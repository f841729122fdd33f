package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fadai88/grid-trading-crypto/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestResolveLadder(t *testing.T) {
	// Default preset when nothing is given.
	cfg, err := resolveLadder("", nil)
	assert.NoError(t, err)
	assert.NotEmpty(t, cfg.Levels)

	// Named preset.
	cfg, err = resolveLadder("aggressive", nil)
	assert.NoError(t, err)
	assert.Equal(t, engine.BarHighLow, cfg.BarMode)

	// Unknown preset.
	_, err = resolveLadder("nope", nil)
	assert.Error(t, err)

	// Explicit ladder wins over the preset name, and is validated.
	bad := &engine.LadderConfig{}
	_, err = resolveLadder("conservative", bad)
	assert.Error(t, err, "empty explicit ladder must be rejected")
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"BTC-USDT", "BTCUSDT"},
		{"btcusdt", "BTCUSDT"},
		{"BTC/USDT", "BTCUSDT"},
		{"ETH_USDT", "ETHUSDT"},
		{"XBT/USD", "XBTUSD"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalizeSymbol(tt.input)
			if got != tt.expected {
				t.Errorf("normalizeSymbol(%q) = %q; want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// No token.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Garbage token.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Freshly issued token.
	token, err := GenerateToken(42)
	assert.NoError(t, err)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
