package stores

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MediaPrefix defines the public URL prefix for locally stored recordings.
var MediaPrefix = "/recordings"

type LocalStore struct {
	Root       string
	Prefix     string
	NewDirPerm os.FileMode
}

// NewLocalStore 创建本地录音存储
func NewLocalStore(root string) *LocalStore {
	if root == "" {
		root = "./data/recordings"
	}
	return &LocalStore{
		Root:       root,
		Prefix:     MediaPrefix,
		NewDirPerm: 0o755,
	}
}

// resolve cleans the key against the absolute root, rejecting traversal.
func (l *LocalStore) resolve(key string) (string, error) {
	// 确保Root是绝对路径
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return "", err
	}
	fname := filepath.Clean(filepath.Join(root, key))
	if !strings.HasPrefix(fname, root) {
		return "", ErrInvalidPath
	}
	return fname, nil
}

// Read implements Store.
func (l *LocalStore) Read(key string) (io.ReadCloser, int64, error) {
	fname, err := l.resolve(key)
	if err != nil {
		return nil, 0, err
	}
	st, err := os.Stat(fname)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(fname)
	if err != nil {
		return nil, 0, err
	}
	return f, st.Size(), nil
}

// Write implements Store.
func (l *LocalStore) Write(key string, r io.Reader) error {
	fname, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fname), l.NewDirPerm); err != nil {
		return err
	}
	f, err := os.Create(fname)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(f, r)
	return err
}

// Delete implements Store.
func (l *LocalStore) Delete(key string) error {
	fname, err := l.resolve(key)
	if err != nil {
		return err
	}
	return os.Remove(fname)
}

// PublicURL implements Store.
func (l *LocalStore) PublicURL(key string) string {
	prefix := l.Prefix
	if prefix == "" {
		prefix = MediaPrefix
	}
	return prefix + "/" + strings.TrimPrefix(key, "/")
}
