package memory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions recognized as guidance documents.
var documentExts = map[string]bool{".md": true, ".txt": true}

type fileStore struct {
	root string
}

// NewFileStore creates a Store that reads markdown and text files below root.
// Keys are slash-separated paths relative to root. Hidden files and
// directories are skipped, and a missing root lists as empty.
func NewFileStore(root string) Store {
	return &fileStore{root: root}
}

func (s *fileStore) List(ctx context.Context) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.root {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !documentExts[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadFailed, err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) Load(_ context.Context, keys ...string) ([]Document, error) {
	docs := make([]Document, 0, len(keys))

	for _, key := range keys {
		if !fs.ValidPath(key) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadFailed, key, err)
		}
		docs = append(docs, Document{Key: key, Body: data})
	}

	return docs, nil
}
