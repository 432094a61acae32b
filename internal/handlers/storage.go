package handlers

import (
	"github.com/labstack/echo/v4"
)

// StorageHandler serves downloaded media under /storage.
type StorageHandler struct {
	dir string
}

// NewStorageHandler creates a static file handler for the media dir.
func NewStorageHandler(dir string) *StorageHandler {
	return &StorageHandler{dir: dir}
}

// Register registers the static route.
func (h *StorageHandler) Register(e *echo.Echo) {
	e.Static("/storage", h.dir)
}
