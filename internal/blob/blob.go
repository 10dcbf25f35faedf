// Package blob reads uploaded lead lists and writes scrub outputs to a
// bucket-addressed object store.
package blob

import (
	"context"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = eris.New("blob: object not found")

// ContentTypeCSV is the content type of every scrub output.
const ContentTypeCSV = "text/csv"

// Store is a bucket/object store.
type Store interface {
	Read(ctx context.Context, bucket, name string) ([]byte, error)
	Write(ctx context.Context, bucket, name string, data []byte, contentType string) error
}

// cleanKey validates a bucket/object pair and joins it into a slash path.
func cleanKey(bucket, name string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", eris.Errorf("blob: invalid bucket %q", bucket)
	}
	n := path.Clean("/" + strings.ReplaceAll(name, `\`, "/"))
	if n == "/" {
		return "", eris.Errorf("blob: invalid object name %q", name)
	}
	return bucket + n, nil
}
