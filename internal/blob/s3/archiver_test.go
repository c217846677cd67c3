package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossarb/engine/internal/domain"
)

type fakeWriter struct {
	mu        sync.Mutex
	puts      map[string]string
	multipart int
	err       error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{puts: make(map[string]string)}
}

func (f *fakeWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if f.err != nil {
		return f.err
	}
	b, _ := io.ReadAll(data)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts[path] = string(b)
	return nil
}

func (f *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	f.multipart++
	return f.Put(context.Background(), path, data, "")
}

type fakeExecStore struct {
	records []domain.ExecutionRecord
	deleted *time.Time
}

func (f *fakeExecStore) Create(context.Context, domain.ExecutionRecord) error { return nil }

func (f *fakeExecStore) ListRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return f.records, nil
}

func (f *fakeExecStore) ListBefore(_ context.Context, cutoff time.Time) ([]domain.ExecutionRecord, error) {
	var out []domain.ExecutionRecord
	for _, r := range f.records {
		if r.StartedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeExecStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.deleted = &cutoff
	var n int64
	for _, r := range f.records {
		if r.StartedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(id string, started time.Time) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		ID:        id,
		Outcome:   domain.ExecBothFilled,
		StartedAt: started,
	}
}

func TestArchiveBefore_UploadsThenDeletes(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -90)

	store := &fakeExecStore{records: []domain.ExecutionRecord{
		record("old-1", cutoff.AddDate(0, 0, -5)),
		record("old-2", cutoff.AddDate(0, 0, -1)),
		record("fresh", now),
	}}
	writer := newFakeWriter()
	a := NewArchiver(writer, store, testLogger())

	n, err := a.ArchiveBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	body, ok := writer.puts["archive/executions/2026-06.jsonl"]
	require.True(t, ok, "expected archive keyed by cutoff month, got %v", writer.puts)
	assert.Equal(t, 2, strings.Count(body, "\n"))
	assert.Contains(t, body, "old-1")
	assert.NotContains(t, body, "fresh")

	require.NotNil(t, store.deleted)
	assert.True(t, store.deleted.Equal(cutoff))
}

func TestArchiveBefore_NothingToArchive(t *testing.T) {
	store := &fakeExecStore{}
	writer := newFakeWriter()
	a := NewArchiver(writer, store, testLogger())

	n, err := a.ArchiveBefore(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.puts)
	assert.Nil(t, store.deleted, "delete must not run when nothing was uploaded")
}

func TestArchiveBefore_UploadFailureKeepsRows(t *testing.T) {
	store := &fakeExecStore{records: []domain.ExecutionRecord{
		record("old", time.Now().Add(-time.Hour)),
	}}
	writer := newFakeWriter()
	writer.err = errors.New("bucket gone")
	a := NewArchiver(writer, store, testLogger())

	_, err := a.ArchiveBefore(context.Background(), time.Now())
	require.Error(t, err)
	assert.Nil(t, store.deleted)
}

func TestMarshalJSONL(t *testing.T) {
	buf, err := marshalJSONL([]domain.ExecutionRecord{
		record("a", time.Now()),
		record("b", time.Now()),
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	assert.Len(t, lines, 2)
}
