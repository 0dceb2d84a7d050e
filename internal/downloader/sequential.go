// Package downloader saves batches of media items to disk. Items are
// fetched strictly one at a time with a fixed pause between fetches,
// because parallel requests against the media CDN get sessions flagged.
package downloader

import (
	"bytes"
	"context"
	"io"
	"time"

	"igvault/pkg/logger"
	"igvault/pkg/media"
)

// Fetcher retrieves media bytes by URL.
type Fetcher interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Saver persists media files and knows which ones already exist.
type Saver interface {
	Save(r io.Reader, filename string) error
	IsDownloaded(filename string) bool
}

// Failure records one item that could not be downloaded.
type Failure struct {
	ItemID string `json:"item_id"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Summary is the outcome of a batch run.
type Summary struct {
	Saved    int       `json:"saved"`
	Skipped  int       `json:"skipped"`
	Failures []Failure `json:"failures,omitempty"`
}

// Sequential downloads item batches in order, never in parallel.
type Sequential struct {
	fetcher Fetcher
	saver   Saver
	delay   time.Duration
	logger  logger.Logger
}

// NewSequential creates a sequential downloader with the given pause
// between fetches.
func NewSequential(fetcher Fetcher, saver Saver, delay time.Duration, log logger.Logger) *Sequential {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Sequential{
		fetcher: fetcher,
		saver:   saver,
		delay:   delay,
		logger:  log,
	}
}

// Run downloads the items in order. Items already on disk are skipped.
// A failed item is recorded and the batch continues with the next one.
// Cancelling the context abandons the remaining items; the summary
// covers what was processed up to that point.
func (d *Sequential) Run(ctx context.Context, username string, items []media.Item) (*Summary, error) {
	summary := &Summary{}
	fetched := false

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			d.logger.WarnWithFields("batch cancelled", map[string]interface{}{
				"username":  username,
				"saved":     summary.Saved,
				"remaining": len(items) - summary.Saved - summary.Skipped - len(summary.Failures),
			})
			return summary, err
		}

		filename := item.Filename(username)

		if d.saver.IsDownloaded(filename) {
			summary.Skipped++
			d.logger.DebugWithFields("skipping existing file", map[string]interface{}{
				"filename": filename,
			})
			continue
		}

		// Pause between fetches, but not before the first one
		if fetched && d.delay > 0 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(d.delay):
			}
		}

		fetched = true
		data, err := d.fetcher.Download(ctx, item.URL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			summary.Failures = append(summary.Failures, Failure{
				ItemID: item.ID,
				URL:    item.URL,
				Reason: err.Error(),
			})
			d.logger.WarnWithFields("item download failed", map[string]interface{}{
				"item_id": item.ID,
				"error":   err.Error(),
			})
			continue
		}

		if err := d.saver.Save(bytes.NewReader(data), filename); err != nil {
			summary.Failures = append(summary.Failures, Failure{
				ItemID: item.ID,
				URL:    item.URL,
				Reason: err.Error(),
			})
			d.logger.WarnWithFields("item save failed", map[string]interface{}{
				"item_id": item.ID,
				"error":   err.Error(),
			})
			continue
		}

		summary.Saved++
		d.logger.InfoWithFields("saved media item", map[string]interface{}{
			"filename": filename,
			"size":     len(data),
		})
	}

	return summary, nil
}
