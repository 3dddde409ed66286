package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facehook/internal/payload"
	"github.com/your-org/facehook/internal/recognition"
	"github.com/your-org/facehook/pkg/dto"
)

type RecognitionHandler struct {
	svc           *recognition.Service
	publicBaseURL string
}

func NewRecognitionHandler(svc *recognition.Service, publicBaseURL string) *RecognitionHandler {
	return &RecognitionHandler{svc: svc, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Ingest is the webhook the camera posts detection events to.
func (h *RecognitionHandler) Ingest(c *gin.Context) {
	ack, err := h.svc.Ingest(c.Request.Context(), c.Request, h.baseURL(c))
	if err != nil {
		var de *payload.DecodeError
		if errors.As(err, &de) {
			status := http.StatusBadRequest
			if de.Kind == payload.TooLarge {
				status = http.StatusRequestEntityTooLarge
			}
			slog.Warn("rejected detection event", "error", de.Error(), "cause", de.Err)
			c.JSON(status, dto.ErrorResponse{Error: de.Error()})
			return
		}
		slog.Error("ingest detection event", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.IngestResponse{
		Success:    true,
		Recognized: ack.Recognized,
		Name:       ack.Name,
	})
}

// Latest returns the most recent record, or the waiting sentinel.
func (h *RecognitionHandler) Latest(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, h.svc.Latest())
}

// baseURL is the origin image URLs are built on: the configured public URL,
// else the scheme and host the device used to reach us.
func (h *RecognitionHandler) baseURL(c *gin.Context) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := c.Request.Host
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host
}
