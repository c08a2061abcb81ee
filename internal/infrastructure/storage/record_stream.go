package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"FinNewsAgent/internal/domain"
	"FinNewsAgent/internal/ports"
)

const streamVersion = 1

// envelope is one line of the record stream.
type envelope struct {
	V         int                   `json:"v"`
	Identity  string                `json:"identity"`
	WrittenAt time.Time             `json:"written_at"`
	Record    domain.EnrichedRecord `json:"record"`
}

type streamFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

// RecordStream is an append-only JSON Lines file of enriched records. Each
// line carries its identity, so the stream doubles as the durable dedup log.
type RecordStream struct {
	mu     sync.Mutex
	path   string
	file   streamFile
	size   int64
	ids    map[string]domain.DedupRecord
	order  []string
	now    func() time.Time
	logger zerolog.Logger
}

var _ ports.RecordSink = (*RecordStream)(nil)

// OpenRecordStream opens or creates the stream at path. A partially written
// last line left by a crash is truncated away.
func OpenRecordStream(path string, logger zerolog.Logger) (*RecordStream, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create record dir: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record stream: %w", err)
	}

	s := &RecordStream{
		path:   path,
		file:   file,
		ids:    make(map[string]domain.DedupRecord),
		now:    time.Now,
		logger: logger,
	}

	valid, total, err := s.load(file)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if valid < total {
		if err := file.Truncate(valid); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("repair torn tail: %w", err)
		}
		logger.Warn().
			Str("path", path).
			Int64("dropped_bytes", total-valid).
			Msg("record stream had a torn tail, truncated")
	}
	s.size = valid

	logger.Info().
		Str("path", path).
		Int("records", len(s.ids)).
		Msg("record stream opened")

	return s, nil
}

// load indexes every complete line and returns the offset just past the last
// newline together with the file size.
func (s *RecordStream) load(r io.Reader) (int64, int64, error) {
	reader := bufio.NewReader(r)
	var offset int64
	lineNo := 0
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return offset, offset + int64(len(line)), nil
		}
		if err != nil {
			return 0, 0, fmt.Errorf("read record stream: %w", err)
		}
		offset += int64(len(line))
		lineNo++

		env, ok := decodeLine(line)
		if !ok {
			s.logger.Warn().Int("line", lineNo).Msg("skipping undecodable record line")
			continue
		}
		s.remember(env)
	}
}

func (s *RecordStream) remember(env envelope) {
	if _, ok := s.ids[env.Identity]; ok {
		return
	}
	s.ids[env.Identity] = domain.DedupRecord{
		Identity:  env.Identity,
		Symbol:    env.Record.Symbol,
		FirstSeen: env.WrittenAt,
	}
	s.order = append(s.order, env.Identity)
}

// Append durably writes record as one line. Appending an identity that is
// already stored writes nothing and returns domain.ErrAlreadyStored. Write or
// sync failures roll the file back to its previous size and are reported as
// fatal.
func (s *RecordStream) Append(_ context.Context, record domain.EnrichedRecord) error {
	if record.Identity == "" {
		return domain.ParseFailure(domain.StagePersisting, errors.New("record has no identity"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return domain.Fatal(domain.StagePersisting, errors.New("record stream is closed"))
	}
	if _, ok := s.ids[record.Identity]; ok {
		return domain.ErrAlreadyStored
	}

	env := envelope{
		V:         streamVersion,
		Identity:  record.Identity,
		WrittenAt: s.now().UTC(),
		Record:    record,
	}
	line, err := json.Marshal(env)
	if err != nil {
		return domain.ParseFailure(domain.StagePersisting, fmt.Errorf("encode record: %w", err))
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return s.rollback(fmt.Errorf("write record: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return s.rollback(fmt.Errorf("sync record stream: %w", err))
	}

	s.size += int64(len(line))
	s.remember(env)
	return nil
}

func (s *RecordStream) rollback(cause error) error {
	if err := s.file.Truncate(s.size); err != nil {
		cause = fmt.Errorf("%w (rollback failed: %v)", cause, err)
	}
	return domain.Fatal(domain.StagePersisting, cause)
}

// Identities returns one DedupRecord per stored record in write order.
func (s *RecordStream) Identities() []domain.DedupRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.DedupRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.ids[id])
	}
	return out
}

// Len returns the number of stored records.
func (s *RecordStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Path returns the backing file location.
func (s *RecordStream) Path() string {
	return s.path
}

// Close releases the file. Later appends fail.
func (s *RecordStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ReadRecords loads every complete record from the stream at path. It is safe
// to call while another process appends.
func ReadRecords(path string) ([]domain.EnrichedRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open record stream: %w", err)
	}
	defer file.Close()

	var out []domain.EnrichedRecord
	err = Scan(file, func(rec domain.EnrichedRecord) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// Scan calls fn for each newline-terminated, decodable line of r. A trailing
// line without newline is still being written and is ignored.
func Scan(r io.Reader, fn func(domain.EnrichedRecord) error) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read record stream: %w", err)
		}
		env, ok := decodeLine(line)
		if !ok {
			continue
		}
		if err := fn(env.Record); err != nil {
			return err
		}
	}
}

func decodeLine(line []byte) (envelope, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil || env.Identity == "" {
		return envelope{}, false
	}
	if env.Record.Identity == "" {
		env.Record.Identity = env.Identity
	}
	return env, true
}
