package store

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// FileStore appends records to a JSON-lines file. Later lines with the same
// id replace earlier ones.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store writing to path, creating its directory.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return &FileStore{path: path}, nil
}

// Record appends r.
func (s *FileStore) Record(_ context.Context, r Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Get returns the latest record with id.
func (s *FileStore) Get(ctx context.Context, id string) (*Record, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

// List returns records newest first.
func (s *FileStore) List(_ context.Context, limit int) ([]Record, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Close does nothing.
func (s *FileStore) Close(context.Context) error { return nil }

// load reads every record, newest first, keeping the last write per id.
func (s *FileStore) load() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []Record
	index := map[string]int{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r Record
		if json.Unmarshal(sc.Bytes(), &r) != nil {
			continue
		}
		if i, ok := index[r.ID]; ok {
			recs[i] = r
			continue
		}
		index[r.ID] = len(recs)
		recs = append(recs, r)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(recs, func(a, b Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return recs, nil
}

var _ Store = (*FileStore)(nil)
