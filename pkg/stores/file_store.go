package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/chainstage/pkg/engine"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

// FileStore keeps the record in a YAML file. Every write first checks that
// the file still has the content this store last saw, so hand edits made
// during a run surface as ErrConflict instead of being overwritten.
type FileStore struct {
	mu     sync.Mutex
	path   string
	digest string
	seen   bool
	logger zerolog.Logger
}

// NewFileStore creates a store backed by path. The file need not exist.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "file_store").Str("path", path).Logger(),
	}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record. A missing file yields an empty record.
func (s *FileStore) Load(ctx context.Context) (*engine.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, digest, err := s.read()
	if err != nil {
		return nil, err
	}
	s.digest, s.seen = digest, true

	record, err := doc.Record()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return record, nil
}

// Save replaces the roles section. Pending transactions are kept.
func (s *FileStore) Save(ctx context.Context, record *engine.Record) error {
	return s.mutate(ctx, func(doc *Document) error {
		doc.Roles = NewDocument(record).Roles
		return nil
	})
}

// ApplyUpdate merges one step result into the file.
func (s *FileStore) ApplyUpdate(ctx context.Context, update *engine.Update) error {
	if update == nil {
		return nil
	}
	return s.mutate(ctx, func(doc *Document) error {
		record, err := doc.Record()
		if err != nil {
			return err
		}
		record.Apply(update)
		doc.Roles = NewDocument(record).Roles
		return nil
	})
}

// RecordPending journals a submitted transaction under key.
func (s *FileStore) RecordPending(ctx context.Context, key string, tx *ledger.PendingTransaction) error {
	return s.mutate(ctx, func(doc *Document) error {
		if doc.Pending == nil {
			doc.Pending = make(map[string]PendingEntry)
		}
		doc.Pending[key] = newPendingEntry(tx)
		return nil
	})
}

// Pending returns the journaled transaction for key, or nil.
func (s *FileStore) Pending(ctx context.Context, key string) (*ledger.PendingTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, _, err := s.read()
	if err != nil {
		return nil, err
	}
	entry, ok := doc.Pending[key]
	if !ok {
		return nil, nil
	}
	tx, err := entry.transaction()
	if err != nil {
		return nil, fmt.Errorf("%s: pending %s: %w", s.path, key, err)
	}
	return tx, nil
}

// ClearPending drops the journal entry for key.
func (s *FileStore) ClearPending(ctx context.Context, key string) error {
	return s.mutate(ctx, func(doc *Document) error {
		delete(doc.Pending, key)
		return nil
	})
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) mutate(ctx context.Context, fn func(*Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, digest, err := s.read()
	if err != nil {
		return err
	}
	if s.seen && digest != s.digest {
		return fmt.Errorf("%w: %s", ErrConflict, s.path)
	}

	if err := fn(doc); err != nil {
		return err
	}
	data, err := doc.Encode()
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}

	s.digest, s.seen = checksum(data), true
	s.logger.Debug().Str("digest", s.digest[:12]).Msg("Record written")
	return nil
}

// read returns the current document and the digest of its bytes. A missing
// file has an empty digest.
func (s *FileStore) read() (*Document, string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc, _ := DecodeDocument(nil)
		return doc, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read record: %w", err)
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, checksum(data), nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set record permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}
