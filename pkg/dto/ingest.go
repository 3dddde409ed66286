// Package dto holds the wire shapes of the HTTP API that are not the
// recognition record itself.
package dto

// IngestResponse acknowledges an accepted detection event.
type IngestResponse struct {
	Success    bool    `json:"success"`
	Recognized bool    `json:"recognized"`
	Name       *string `json:"name,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
