package stores

import (
	"errors"
	"io"
)

var ErrInvalidPath = errors.New("invalid path")

// Store holds recording payloads fetched through the provider proxy so the
// console can replay them from a local URL.
type Store interface {
	Read(key string) (io.ReadCloser, int64, error)
	Write(key string, r io.Reader) error
	Delete(key string) error
	PublicURL(key string) string
}
