package tabular

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// maxEntryBytes caps the decompressed size of a single archive entry.
const maxEntryBytes = 512 << 20

// Entry is one file unpacked from a ZIP archive.
type Entry struct {
	Name string
	Data []byte
}

// UnpackZIP reads every regular file of an in-memory archive, sorted by name.
func UnpackZIP(data []byte) ([]Entry, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	var entries []Entry
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.ReplaceAll(f.Name, `\`, "/"))
		if strings.HasPrefix(name, "../") || name == ".." || path.IsAbs(name) {
			return nil, eris.Errorf("zip: illegal path %q", f.Name)
		}

		body, err := readZIPEntry(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, Data: body})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func readZIPEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "zip: read entry %s", f.Name)
	}
	if len(body) > maxEntryBytes {
		return nil, eris.Errorf("zip: entry %s exceeds %d bytes", f.Name, maxEntryBytes)
	}
	return body, nil
}
