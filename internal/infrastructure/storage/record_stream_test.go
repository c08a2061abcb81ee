package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsAgent/internal/domain"
)

func record(id string) domain.EnrichedRecord {
	return domain.EnrichedRecord{
		RawArticle: domain.RawArticle{
			Identity:    id,
			Symbol:      "AAPL",
			Title:       "Title " + id,
			Body:        "Body " + id,
			PublishedAt: time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
			SourceURL:   "https://news.test/" + id,
		},
		Sentiment:    domain.SentimentPositive,
		Topics:       []string{"earnings"},
		ImpactScore:  42,
		Summary:      "Summary " + id,
		AnalyzedAt:   time.Date(2025, 5, 1, 10, 5, 0, 0, time.UTC),
		ModelVersion: "test-model",
	}
}

func stored(s *RecordStream, identity string) bool {
	for _, rec := range s.Identities() {
		if rec.Identity == identity {
			return true
		}
	}
	return false
}

func openStream(t *testing.T, path string) *RecordStream {
	t.Helper()
	s, err := OpenRecordStream(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndReadBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data", "records.jsonl")
	s := openStream(t, path)

	require.NoError(t, s.Append(context.Background(), record("a")))
	require.NoError(t, s.Append(context.Background(), record("b")))

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Identity)
	assert.Equal(t, domain.SentimentPositive, records[0].Sentiment)
	assert.Equal(t, []string{"earnings"}, records[1].Topics)
	assert.Equal(t, 42.0, records[1].ImpactScore)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), `{"v":1,"identity":"a",`))
}

func TestAppendIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.jsonl")
	s := openStream(t, path)

	require.NoError(t, s.Append(context.Background(), record("same")))
	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, s.Append(context.Background(), record("same")), domain.ErrAlreadyStored)
	}
	assert.Equal(t, 1, s.Len())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestIdentitiesSurviveReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.jsonl")
	first, err := OpenRecordStream(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), record("a")))
	require.NoError(t, first.Append(context.Background(), record("b")))
	require.NoError(t, first.Close())

	second := openStream(t, path)
	ids := second.Identities()
	require.Len(t, ids, 2)
	assert.Equal(t, "a", ids[0].Identity)
	assert.Equal(t, domain.Symbol("AAPL"), ids[1].Symbol)
	assert.False(t, ids[0].FirstSeen.IsZero())

	assert.ErrorIs(t, second.Append(context.Background(), record("a")), domain.ErrAlreadyStored)
	assert.Equal(t, 2, second.Len())
}

func TestOpenRepairsTornTail(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.jsonl")
	first, err := OpenRecordStream(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, first.Append(context.Background(), record("a")))
	require.NoError(t, first.Close())

	// Simulate a crash in the middle of writing the second line.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"v":1,"identity":"b","written_at":"2025-05-01T10:00:00Z","rec`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 1, "reader ignores the partial line")

	var logs bytes.Buffer
	second, err := OpenRecordStream(path, zerolog.New(&logs))
	require.NoError(t, err)
	defer second.Close()

	assert.Contains(t, logs.String(), "torn tail")
	assert.False(t, stored(second, "b"))
	require.NoError(t, second.Append(context.Background(), record("b")))

	records, err = ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[1].Identity)
}

type failingFile struct {
	streamFile
	failSync  bool
	truncated []int64
}

func (f *failingFile) Sync() error {
	if f.failSync {
		return errors.New("disk full")
	}
	return f.streamFile.Sync()
}

func (f *failingFile) Truncate(size int64) error {
	f.truncated = append(f.truncated, size)
	return f.streamFile.Truncate(size)
}

func TestFailedAppendRollsBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.jsonl")
	s := openStream(t, path)
	require.NoError(t, s.Append(context.Background(), record("a")))

	before, err := os.Stat(path)
	require.NoError(t, err)

	ff := &failingFile{streamFile: s.file, failSync: true}
	s.file = ff

	err = s.Append(context.Background(), record("b"))
	require.Error(t, err)
	assert.Equal(t, domain.KindFatal, domain.KindOf(err))
	assert.Equal(t, domain.StagePersisting, domain.StageOf(err))
	assert.Equal(t, []int64{before.Size()}, ff.truncated)
	assert.False(t, stored(s, "b"))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.Size(), after.Size())

	ff.failSync = false
	require.NoError(t, s.Append(context.Background(), record("b")))
	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestConcurrentAppendAndRead(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "records.jsonl")
	s := openStream(t, path)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				id := string(rune('a'+n)) + "-" + string(rune('a'+j))
				assert.NoError(t, s.Append(context.Background(), record(id)))
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_, err := ReadRecords(path)
			assert.NoError(t, err)
		}
	}()

	wg.Wait()
	<-done

	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Len(t, records, 160)
	assert.Equal(t, 160, s.Len())
}

func TestAppendAfterCloseIsFatal(t *testing.T) {
	t.Parallel()

	s, err := OpenRecordStream(filepath.Join(t.TempDir(), "records.jsonl"), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Append(context.Background(), record("a"))
	assert.Equal(t, domain.KindFatal, domain.KindOf(err))
}
