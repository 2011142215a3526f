package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/plate-filler/backend/internal/storage"
)

// HandleListFiles returns the most recent uploaded experiment files.
func (h *Handler) HandleListFiles(c echo.Context) error {
	limit, err := limitParam(c)
	if err != nil {
		return err
	}
	files, err := h.store.List(limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata of one uploaded file.
func (h *Handler) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return fileError(id, err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile removes an uploaded file. Runs allocated from it keep
// their layouts.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return fileError(id, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func fileError(id string, err error) error {
	if errors.Is(err, storage.ErrFileNotFound) {
		return NewNotFoundError("file", id)
	}
	return NewInternalError("file storage failed", err)
}
