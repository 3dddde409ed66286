package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facehook/internal/api/handlers"
	"github.com/your-org/facehook/internal/queue"
	"github.com/your-org/facehook/internal/recognition"
	"github.com/your-org/facehook/internal/storage"
)

type RouterConfig struct {
	Service  *recognition.Service
	Store    storage.Store
	Producer *queue.Producer // optional
	// PublicBaseURL prefixes image URLs; empty derives it from each request.
	PublicBaseURL string
	// StaticDir is the built dashboard, served for every non-API path.
	StaticDir string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := handlers.NewSystemHandler(cfg.Store, cfg.Producer)
	r.GET("/health", systemH.Health)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	recH := handlers.NewRecognitionHandler(cfg.Service, cfg.PublicBaseURL)
	apiGroup := r.Group("/api")
	apiGroup.POST("/face-recognition", recH.Ingest)
	apiGroup.GET("/face-recognition/latest", recH.Latest)

	uploadH := handlers.NewUploadHandler(cfg.Store)
	r.GET("/uploads/:name", uploadH.Get)
	r.HEAD("/uploads/:name", uploadH.Get)

	r.NoRoute(spaFallback(cfg.StaticDir))
	return r
}

// spaFallback serves files of the dashboard build and answers unknown
// client-side routes with its index.html. API paths stay 404.
func spaFallback(dir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if dir == "" || strings.HasPrefix(p, "/api/") || (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		file := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+p)))
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			c.File(file)
			return
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.File(index)
	}
}
