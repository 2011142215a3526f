package storage

import (
	"errors"

	"github.com/labstack/gommon/log"
	"github.com/plate-filler/backend/internal/models"
)

// ReleaseRun returns a callback that removes what a run left on disk: its
// cached plate images and the uploaded file it was allocated from.
// Failures are logged, never returned.
func ReleaseRun(store Store, renders *RenderCache) func(run *models.AllocationRun) {
	return func(run *models.AllocationRun) {
		if err := renders.DeleteRun(run.ID); err != nil {
			log.Warnf("[Storage] failed to delete images of run %s: %v", run.ID, err)
		}
		if run.FileID == "" || store == nil {
			return
		}
		if err := store.Delete(run.FileID); err != nil && !errors.Is(err, ErrFileNotFound) {
			log.Warnf("[Storage] failed to delete file %s of run %s: %v", run.FileID, run.ID, err)
		}
	}
}
