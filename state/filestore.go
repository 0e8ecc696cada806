package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/agentmesh/substrate/component"
)

// walRecord is one line of the write-ahead log.
type walRecord struct {
	Op      string          `json:"op"` // "set" | "delete" | "migration"
	Scope   scopeWire       `json:"scope"`
	Name    string          `json:"name,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Version int             `json:"version,omitempty"`
}

type scopeWire struct {
	Kind int    `json:"kind"`
	ID   string `json:"id"`
}

func toWire(s component.Scope) scopeWire { return scopeWire{Kind: int(s.Kind), ID: s.ID} }
func fromWire(w scopeWire) component.Scope {
	return component.Scope{Kind: component.ScopeKind(w.Kind), ID: w.ID}
}

// FileStore is a single-writer, append-only write-ahead log backend. On
// open, it replays the log to rebuild its in-memory index; CompactNow
// rewrites the log to hold only the current live state, bounding replay
// time for long-lived stores.
type FileStore struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	writer     *bufio.Writer
	data       map[Key]json.RawMessage
	migrated   map[int]bool
	maxApplied int
}

// OpenFileStore opens (creating if absent) the WAL at path and replays it.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("state: open wal: %w", err)
	}
	fs := &FileStore{
		path:     path,
		file:     f,
		data:     make(map[Key]json.RawMessage),
		migrated: make(map[int]bool),
	}
	if err := fs.replay(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, os.SEEK_END); err != nil {
		f.Close()
		return nil, err
	}
	fs.writer = bufio.NewWriter(f)
	return fs, nil
}

func (fs *FileStore) replay() error {
	if _, err := fs.file.Seek(0, os.SEEK_SET); err != nil {
		return err
	}
	scanner := bufio.NewScanner(fs.file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec walRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("state: corrupt wal record: %w", err)
		}
		switch rec.Op {
		case "set":
			fs.data[Key{Scope: fromWire(rec.Scope), Name: rec.Name}] = rec.Value
		case "delete":
			delete(fs.data, Key{Scope: fromWire(rec.Scope), Name: rec.Name})
		case "migration":
			fs.migrated[rec.Version] = true
			if rec.Version > fs.maxApplied {
				fs.maxApplied = rec.Version
			}
		}
	}
	return scanner.Err()
}

func (fs *FileStore) appendRecord(rec walRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := fs.writer.Write(b); err != nil {
		return err
	}
	if err := fs.writer.WriteByte('\n'); err != nil {
		return err
	}
	return fs.writer.Flush()
}

func (fs *FileStore) Get(_ context.Context, key Key) (any, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	raw, ok := fs.data[key]
	if !ok {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (fs *FileStore) Set(_ context.Context, key Key, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.appendRecord(walRecord{Op: "set", Scope: toWire(key.Scope), Name: key.Name, Value: raw}); err != nil {
		return err
	}
	fs.data[key] = raw
	return nil
}

func (fs *FileStore) Delete(_ context.Context, key Key) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, existed := fs.data[key]
	if err := fs.appendRecord(walRecord{Op: "delete", Scope: toWire(key.Scope), Name: key.Name}); err != nil {
		return false, err
	}
	delete(fs.data, key)
	return existed, nil
}

func (fs *FileStore) ListKeys(_ context.Context, scope component.Scope, prefix string) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var out []string
	for k := range fs.data {
		if k.Scope != scope {
			continue
		}
		if strings.HasPrefix(k.Name, prefix) {
			out = append(out, k.Name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (fs *FileStore) ApplyMigration(ctx context.Context, version int, apply func(ctx context.Context) error) error {
	fs.mu.Lock()
	if fs.migrated[version] {
		fs.mu.Unlock()
		return nil
	}
	if version != fs.maxApplied+1 {
		fs.mu.Unlock()
		return ErrMigrationOutOfOrder
	}
	fs.mu.Unlock()

	if apply != nil {
		if err := apply(ctx); err != nil {
			return err
		}
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.appendRecord(walRecord{Op: "migration", Version: version}); err != nil {
		return err
	}
	fs.migrated[version] = true
	fs.maxApplied = version
	return nil
}

// CompactNow rewrites the log to hold only "set" records for currently live
// keys plus applied migration markers, discarding deleted/superseded
// history. It is safe to call periodically from a background goroutine.
func (fs *FileStore) CompactNow() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	tmpPath := fs.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	for k, v := range fs.data {
		rec := walRecord{Op: "set", Scope: toWire(k.Scope), Name: k.Name, Value: v}
		b, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			tmp.Close()
			return err
		}
	}
	for version := range fs.migrated {
		rec := walRecord{Op: "migration", Version: version}
		b, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := fs.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, fs.path); err != nil {
		return err
	}
	f, err := os.OpenFile(fs.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	fs.file = f
	fs.writer = bufio.NewWriter(f)
	return nil
}

// Close flushes and closes the underlying file.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.writer.Flush(); err != nil {
		return err
	}
	return fs.file.Close()
}
