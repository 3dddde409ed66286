package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facehook/internal/queue"
	"github.com/your-org/facehook/internal/storage"
)

type SystemHandler struct {
	store    storage.Store
	producer *queue.Producer
}

// NewSystemHandler builds the health endpoints. producer may be nil when
// event publishing is disabled.
func NewSystemHandler(store storage.Store, producer *queue.Producer) *SystemHandler {
	return &SystemHandler{store: store, producer: producer}
}

// Health is the plain liveness probe the dashboard and device use.
func (h *SystemHandler) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := h.store.Ping(ctx); err != nil {
		checks["storage"] = err.Error()
		healthy = false
	} else {
		checks["storage"] = "ok"
	}

	if h.producer != nil {
		if err := h.producer.Ping(); err != nil {
			checks["nats"] = err.Error()
			healthy = false
		} else {
			checks["nats"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
