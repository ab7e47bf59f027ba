package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jackzhu119/Gemini-clone/pkg/conversation"
	"github.com/pkg/errors"
)

// FileStore keeps the collection in a single JSON file. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so a reader never sees a partial write.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("file store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "could not create store directory")
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(ctx context.Context) ([]*conversation.ChatSession, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "could not read %s", f.path)
	}
	return Decode(b)
}

func (f *FileStore) SaveAll(ctx context.Context, sessions []*conversation.ChatSession) error {
	b, err := Encode(sessions)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return errors.Wrap(err, "could not create temporary file")
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "could not write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "could not sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "could not close %s", tmpName)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.Wrapf(err, "could not replace %s", f.path)
	}
	return nil
}

var _ SessionStore = (*FileStore)(nil)
