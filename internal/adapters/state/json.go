package state

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/teamflow/internal/core"
	"github.com/hugo-lorenzo-mato/teamflow/internal/fsutil"
)

// envelopeVersion is the current on-disk format.
const envelopeVersion = 1

// JSONStore implements core.WorkflowStore with one JSON file per graph.
//
// Layout:
//
//	<dir>/graphs/<id>.json
//	<dir>/transcripts/<id>.json
type JSONStore struct {
	dir string
	mu  sync.RWMutex
	now func() time.Time
}

var _ core.WorkflowStore = (*JSONStore)(nil)

// NewJSONStore creates a store rooted at dir.
func NewJSONStore(dir string) (*JSONStore, error) {
	s := &JSONStore{dir: dir, now: time.Now}
	for _, sub := range []string{s.graphsDir(), s.transcriptsDir()} {
		if err := os.MkdirAll(sub, 0o750); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	return s, nil
}

func (s *JSONStore) graphsDir() string      { return filepath.Join(s.dir, "graphs") }
func (s *JSONStore) transcriptsDir() string { return filepath.Join(s.dir, "transcripts") }

func (s *JSONStore) graphPath(id core.GraphID) (string, error) {
	name, err := safeName(string(id))
	if err != nil {
		return "", err
	}
	return filepath.Join(s.graphsDir(), name+".json"), nil
}

func (s *JSONStore) transcriptPath(id core.GraphID) (string, error) {
	name, err := safeName(string(id))
	if err != nil {
		return "", err
	}
	return filepath.Join(s.transcriptsDir(), name+".json"), nil
}

// safeName rejects ids that would escape the store directory.
func safeName(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", core.ErrValidation(core.CodeInvalidNode, fmt.Sprintf("invalid graph id %q", id))
	}
	return id, nil
}

// envelope wraps persisted payloads with a version and checksum.
type envelope struct {
	Version   int             `json:"version"`
	Checksum  string          `json:"checksum"`
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

type transcriptFile struct {
	RunID  core.RunID      `json:"run_id"`
	Events []core.RunEvent `json:"events"`
}

func (s *JSONStore) write(path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}
	hash := sha256.Sum256(data)
	out, err := json.MarshalIndent(envelope{
		Version:   envelopeVersion,
		Checksum:  hex.EncodeToString(hash[:]),
		UpdatedAt: s.now(),
		Payload:   data,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, out, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// read decodes the payload at path into v. It returns false if the file
// does not exist.
func read(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	if env.Version > envelopeVersion {
		return false, fmt.Errorf("%s: unsupported format version %d", filepath.Base(path), env.Version)
	}
	// The payload is indented on disk; the checksum covers its compact form.
	var compact bytes.Buffer
	if err := json.Compact(&compact, env.Payload); err != nil {
		return false, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	hash := sha256.Sum256(compact.Bytes())
	if hex.EncodeToString(hash[:]) != env.Checksum {
		return false, core.ErrState("CHECKSUM_MISMATCH", fmt.Sprintf("%s: checksum mismatch", filepath.Base(path)))
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// SaveGraph writes a graph record.
func (s *JSONStore) SaveGraph(_ context.Context, rec *core.GraphRecord) error {
	if rec == nil {
		return core.ErrValidation(core.CodeInvalidNode, "graph record requires an id")
	}
	path, err := s.graphPath(rec.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	if rec.RunState == "" {
		rec.RunState = core.RunStateIdle
	}
	return s.write(path, rec)
}

// LoadGraph reads a graph record, or returns nil if it does not exist.
func (s *JSONStore) LoadGraph(_ context.Context, id core.GraphID) (*core.GraphRecord, error) {
	path, err := s.graphPath(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec core.GraphRecord
	ok, err := read(path, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// ListGraphs returns graph summaries, most recently updated first.
func (s *JSONStore) ListGraphs(_ context.Context) ([]core.GraphSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.graphsDir())
	if err != nil {
		return nil, fmt.Errorf("listing graphs: %w", err)
	}

	out := make([]core.GraphSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		var rec core.GraphRecord
		ok, err := read(filepath.Join(s.graphsDir(), entry.Name()), &rec)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, core.GraphSummary{
			ID:        rec.ID,
			Name:      rec.Name,
			RunState:  rec.RunState,
			NodeCount: len(rec.Nodes),
			UpdatedAt: rec.UpdatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteGraph removes a graph file and its transcript.
func (s *JSONStore) DeleteGraph(_ context.Context, id core.GraphID) error {
	path, err := s.graphPath(id)
	if err != nil {
		return err
	}
	tpath, _ := s.transcriptPath(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.ErrNotFound("graph", string(id))
		}
		return fmt.Errorf("deleting graph: %w", err)
	}
	if err := os.Remove(tpath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	return nil
}

// SaveTranscript replaces the stored transcript of a graph.
func (s *JSONStore) SaveTranscript(_ context.Context, id core.GraphID, runID core.RunID, events []core.RunEvent) error {
	gpath, err := s.graphPath(id)
	if err != nil {
		return err
	}
	tpath, _ := s.transcriptPath(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(gpath); errors.Is(err, os.ErrNotExist) {
		return core.ErrNotFound("graph", string(id))
	}
	if events == nil {
		events = []core.RunEvent{}
	}
	return s.write(tpath, transcriptFile{RunID: runID, Events: events})
}

// LoadTranscript returns the stored transcript of a graph.
func (s *JSONStore) LoadTranscript(_ context.Context, id core.GraphID) (core.RunID, []core.RunEvent, error) {
	tpath, err := s.transcriptPath(id)
	if err != nil {
		return "", nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var file transcriptFile
	ok, err := read(tpath, &file)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", []core.RunEvent{}, nil
	}
	return file.RunID, file.Events, nil
}

// Close is a no-op; the JSON store holds no open handles.
func (s *JSONStore) Close() error { return nil }
