package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrInvalidName = errors.New("invalid artifact name")
)

// Object describes one stored artifact.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Store is the artifact sink behind /uploads. Names are flat: no directories.
type Store interface {
	// Put writes data under name and returns where it landed (file path or object key).
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, name string) ([]byte, string, error)
	// Delete returns ErrNotFound when nothing is stored under name.
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Object, error)
	Ping(ctx context.Context) error
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return ErrInvalidName
	}
	return nil
}
