package credential

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileRecord is the on-disk JSON representation of a Credential, one per
// line, so the file can be appended to without rewriting it whole.
type fileRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	SecretHash  string            `json:"secret_hash"`
	Role        Role              `json:"role"`
	Permissions []string          `json:"permissions,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Revoked     bool              `json:"revoked"`
	Disabled    bool              `json:"disabled"`
	IPWhitelist []string          `json:"ip_whitelist,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FileStore persists credentials to a JSONL file and reloads its in-memory
// index whenever the file changes on disk, so an operator can rotate keys by
// editing the file without restarting the server.
type FileStore struct {
	path    string
	watcher *fsnotify.Watcher
	mem     *MemoryStore
	mu      sync.Mutex
}

// NewFileStore loads credentials from path and starts watching it for
// changes. The containing directory is created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("credential file store: %w", err)
	}

	fs := &FileStore{path: path, mem: NewMemoryStore()}
	if err := fs.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("credential file store: watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("credential file store: watch: %w", err)
	}
	fs.watcher = watcher

	go fs.watch()

	return fs, nil
}

func (fs *FileStore) watch() {
	for {
		select {
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(fs.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := fs.reload(); err != nil {
				slog.Error("credential file store reload failed", "error", err)
			} else {
				slog.Info("credential file store reloaded", "path", fs.path)
			}
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("credential file store watch error", "error", err)
		}
	}
}

func (fs *FileStore) reload() error {
	f, err := os.Open(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("credential file store: open: %w", err)
	}
	defer f.Close()

	next := NewMemoryStore()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec fileRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("credential file store: skipping malformed line", "error", err)
			continue
		}
		next.byID[rec.ID] = &Credential{
			ID:          rec.ID,
			Name:        rec.Name,
			SecretHash:  rec.SecretHash,
			Role:        rec.Role,
			Permissions: rec.Permissions,
			CreatedAt:   rec.CreatedAt,
			ExpiresAt:   rec.ExpiresAt,
			Revoked:     rec.Revoked,
			Disabled:    rec.Disabled,
			IPWhitelist: rec.IPWhitelist,
			Metadata:    rec.Metadata,
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("credential file store: scan: %w", err)
	}

	fs.mu.Lock()
	fs.mem = next
	fs.mu.Unlock()
	return nil
}

func (fs *FileStore) store() *MemoryStore {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.mem
}

func (fs *FileStore) Lookup(ctx context.Context, secret string) (*Credential, error) {
	return fs.store().Lookup(ctx, secret)
}

func (fs *FileStore) Get(ctx context.Context, id string) (*Credential, error) {
	return fs.store().Get(ctx, id)
}

func (fs *FileStore) List(ctx context.Context) ([]*Credential, error) {
	return fs.store().List(ctx)
}

// Create appends a new credential record to the file and updates the
// in-memory index immediately (the watcher will reload again, a harmless
// no-op).
func (fs *FileStore) Create(ctx context.Context, cred *Credential) (string, error) {
	id, err := fs.store().Create(ctx, cred)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("credential file store: append: %w", err)
	}
	defer f.Close()

	rec := fileRecord{
		ID: id, Name: cred.Name, SecretHash: cred.SecretHash, Role: cred.Role,
		Permissions: cred.Permissions,
		CreatedAt:   cred.CreatedAt, ExpiresAt: cred.ExpiresAt, Revoked: cred.Revoked,
		Disabled: cred.Disabled, IPWhitelist: cred.IPWhitelist,
		Metadata: cred.Metadata,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return "", fmt.Errorf("credential file store: write: %w", err)
	}

	return id, nil
}

// Revoke marks the credential revoked in memory and rewrites the file.
func (fs *FileStore) Revoke(ctx context.Context, id string) error {
	if err := fs.store().Revoke(ctx, id); err != nil {
		return err
	}
	return fs.rewrite(ctx)
}

func (fs *FileStore) rewrite(ctx context.Context) error {
	all, err := fs.store().List(ctx)
	if err != nil {
		return err
	}

	tmp := fs.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("credential file store: rewrite: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, c := range all {
		rec := fileRecord{
			ID: c.ID, Name: c.Name, SecretHash: c.SecretHash, Role: c.Role,
			Permissions: c.Permissions,
			CreatedAt:   c.CreatedAt, ExpiresAt: c.ExpiresAt, Revoked: c.Revoked,
			Disabled: c.Disabled, IPWhitelist: c.IPWhitelist,
			Metadata: c.Metadata,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmp, fs.path)
}

// Close stops the filesystem watcher.
func (fs *FileStore) Close() error {
	if fs.watcher == nil {
		return nil
	}
	return fs.watcher.Close()
}
