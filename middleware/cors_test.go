package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func corsRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORSMiddleware(&config.ServerConfig{AllowedOrigins: origins}))
	router.GET("/data", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	return router
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("wildcard allows any origin", func(t *testing.T) {
		router := corsRouter([]string{"*"})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set("Origin", "https://dashboard.example.com")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("allowed origin is echoed", func(t *testing.T) {
		router := corsRouter([]string{"https://dashboard.example.com"})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set("Origin", "https://dashboard.example.com")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("disallowed origin is rejected", func(t *testing.T) {
		router := corsRouter([]string{"https://dashboard.example.com"})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/data", nil)
		req.Header.Set("Origin", "https://evil.example.net")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("preflight is answered", func(t *testing.T) {
		router := corsRouter([]string{"https://dashboard.example.com"})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodOptions, "/data", nil)
		req.Header.Set("Origin", "https://dashboard.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
	})

	t.Run("request without origin passes through", func(t *testing.T) {
		router := corsRouter([]string{"https://dashboard.example.com"})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/data", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
