package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/crossarb/engine/internal/domain"
)

// multipartThreshold is the payload size above which uploads switch to
// multipart.
const multipartThreshold = 8 * 1024 * 1024

// BlobWriter is the upload surface the archiver needs.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves aged execution records out of the primary store into object
// storage. Records are serialized as JSONL, uploaded, and only then deleted
// from the store, so a failed upload never loses data.
type Archiver struct {
	writer BlobWriter
	execs  domain.ExecutionStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer BlobWriter, execs domain.ExecutionStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		execs:  execs,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore archives and deletes all execution records started strictly
// before the cutoff. It returns the number of archived records.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	records, err := a.execs.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(cutoff)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	deleted, err := a.execs.DeleteBefore(ctx, cutoff)
	if err != nil {
		// The upload succeeded; the rows will be retried (and re-uploaded to
		// the same key) on the next run.
		return int64(len(records)), fmt.Errorf("s3blob: archive delete: %w", err)
	}

	a.logger.Info("executions archived",
		slog.String("path", path),
		slog.Int("count", len(records)),
		slog.Int64("deleted", deleted))
	return int64(len(records)), nil
}

// Run archives on the given interval until ctx is done. retention is the age
// past which records are moved to object storage.
func (a *Archiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if _, err := a.ArchiveBefore(ctx, cutoff); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/executions/2026-08.jsonl
func archivePath(cutoff time.Time) string {
	return fmt.Sprintf("archive/executions/%s.jsonl", cutoff.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
