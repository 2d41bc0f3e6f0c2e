package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// PhotoResult reports a photo upload pass.
type PhotoResult struct {
	Uploaded int
	// Waiting photos belong to records the server has not acknowledged yet.
	Waiting int
	Failed  int
	Errors  []error
}

// UploadPhotos sends every pending photo whose asset record already has a
// server id, one request per photo. It runs outside the sync cycle; failures
// leave the photo pending.
func (e *Engine) UploadPhotos(ctx context.Context) (*PhotoResult, error) {
	photos, err := e.db.PendingPhotos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending photos: %w", err)
	}

	res := &PhotoResult{}
	for _, p := range photos {
		if p.RecordServerID == nil {
			res.Waiting++
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		err := e.api.UploadPhoto(ctx, *p.RecordServerID, p.Path)
		e.metrics.RecordPhoto(err)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Errorf("photo %d: %w", p.ID, err))
			ev := e.logger.Warn()
			if errors.Is(err, os.ErrNotExist) {
				ev = e.logger.Error()
			}
			ev.Err(err).Int64("photo", p.ID).Str("path", p.Path).Msg("photo upload failed")
			continue
		}

		if err := e.db.MarkPhotoUploaded(ctx, p.ID, e.now()); err != nil {
			return res, err
		}
		res.Uploaded++
	}

	if res.Uploaded > 0 || res.Failed > 0 {
		e.logger.Info().
			Int("uploaded", res.Uploaded).
			Int("failed", res.Failed).
			Int("waiting", res.Waiting).
			Msg("photo upload finished")
	}
	return res, nil
}
