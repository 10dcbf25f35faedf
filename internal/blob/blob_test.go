package blob

import (
	"context"
	"errors"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		bucket  string
		object  string
		want    string
		wantErr bool
	}{
		{name: "simple", bucket: "leads", object: "uploads/a.csv", want: "leads/uploads/a.csv"},
		{name: "traversal clamped", bucket: "leads", object: "../../etc/passwd", want: "leads/etc/passwd"},
		{name: "backslashes", bucket: "leads", object: `f1\a.csv`, want: "leads/f1/a.csv"},
		{name: "empty bucket", bucket: "", object: "a.csv", wantErr: true},
		{name: "bucket with slash", bucket: "a/b", object: "a.csv", wantErr: true},
		{name: "dot bucket", bucket: "..", object: "a.csv", wantErr: true},
		{name: "empty object", bucket: "leads", object: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cleanKey(tt.bucket, tt.object)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalStore_WriteRead(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	s := NewLocalStore(root)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "out", "f1/leads_clean.csv", []byte("id\n1\n"), ContentTypeCSV))

	data, err := s.Read(ctx, "out", "f1/leads_clean.csv")
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	onDisk, err := os.ReadFile(filepath.Join(root, "out", "f1", "leads_clean.csv"))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Join(root, "out", "f1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStore_Overwrite(t *testing.T) {
	t.Parallel()
	s := NewLocalStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "b", "x.csv", []byte("old"), ContentTypeCSV))
	require.NoError(t, s.Write(ctx, "b", "x.csv", []byte("new"), ContentTypeCSV))

	data, err := s.Read(ctx, "b", "x.csv")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestLocalStore_NotFound(t *testing.T) {
	t.Parallel()
	s := NewLocalStore(t.TempDir())

	_, err := s.Read(context.Background(), "b", "missing.csv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStore_CanceledContext(t *testing.T) {
	t.Parallel()
	s := NewLocalStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Write(ctx, "b", "x.csv", []byte("x"), ContentTypeCSV))
	_, err := s.Read(ctx, "b", "x.csv")
	assert.Error(t, err)
}

func TestNewFTPStore_Defaults(t *testing.T) {
	t.Parallel()
	s := NewFTPStore(FTPOptions{Addr: "ftp.example.com"})
	assert.Equal(t, "ftp.example.com:21", s.opts.Addr)
	assert.Equal(t, 30*time.Second, s.opts.Timeout)
	assert.Equal(t, "anonymous", s.opts.User)

	s = NewFTPStore(FTPOptions{Addr: "ftp.example.com:2121", User: "u", Password: "p"})
	assert.Equal(t, "ftp.example.com:2121", s.opts.Addr)
	assert.Equal(t, "u", s.opts.User)
}

func TestParentDirs(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"/out", "/out/f1"}, parentDirs("out/f1/a.csv"))
	assert.Equal(t, []string{"/out"}, parentDirs("out/a.csv"))
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()
	assert.True(t, isNotFound(&textproto.Error{Code: 550, Msg: "No such file"}))
	assert.False(t, isNotFound(&textproto.Error{Code: 451, Msg: "local error"}))
	assert.False(t, isNotFound(nil))
}

func TestFTPStore_DialFailure(t *testing.T) {
	t.Parallel()
	s := NewFTPStore(FTPOptions{Addr: "127.0.0.1:1", Timeout: 200 * time.Millisecond})

	_, err := s.Read(context.Background(), "b", "x.csv")
	assert.Error(t, err)
	assert.Error(t, s.Write(context.Background(), "b", "x.csv", []byte("x"), ContentTypeCSV))
}
