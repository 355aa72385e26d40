package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/smallbiznis-checkout/internal/config"
)

func corsEngine(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(cfg))
	r.POST("/order", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.OPTIONS("/order", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORSAllowedOrigin(t *testing.T) {
	r := corsEngine(config.Config{
		CORSAllowedOrigins:   []string{"https://shop.example"},
		CORSAllowedMethods:   []string{"GET", "POST"},
		CORSAllowedHeaders:   []string{"Content-Type"},
		CORSAllowCredentials: true,
	})

	req := httptest.NewRequest(http.MethodPost, "/order", nil)
	req.Header.Set("Origin", "https://shop.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://shop.example", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSPreflight(t *testing.T) {
	r := corsEngine(config.Config{CORSAllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodOptions, "/order", nil)
	req.Header.Set("Origin", "https://anywhere.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRejectedOrigin(t *testing.T) {
	r := corsEngine(config.Config{CORSAllowedOrigins: []string{"https://shop.example"}})

	req := httptest.NewRequest(http.MethodPost, "/order", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
