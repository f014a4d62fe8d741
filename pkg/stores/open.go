package stores

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Open returns the RecordStore for backend, ready for use.
func Open(ctx context.Context, backend Backend, path string, logger zerolog.Logger) (RecordStore, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(path, logger), nil
	case BackendSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown record backend: %s", backend)
	}
}

// OpenSQLite creates, initializes and migrates a SQLite store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
