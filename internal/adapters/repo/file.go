package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"chat-automation/internal/domain"
)

// FileStore хранит каждую коллекцию в отдельном JSON-файле каталога.
type FileStore struct {
	dir string
}

var _ domain.DocumentStore = (*FileStore)(nil)

// NewFileStore создаёт хранилище и каталог данных.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога данных: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// Load читает файл коллекции.
func (s *FileStore) Load(ctx context.Context, collection string) ([]byte, error) {
	data, err := os.ReadFile(s.path(collection))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Save переписывает файл коллекции через временный файл и rename.
func (s *FileStore) Save(ctx context.Context, collection string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, collection+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(collection)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
