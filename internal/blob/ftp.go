package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP store.
type FTPOptions struct {
	Addr     string
	User     string
	Password string
	Timeout  time.Duration
}

// FTPStore keeps objects on an FTP server under /<bucket>/<name>. Each call
// opens its own connection.
type FTPStore struct {
	opts FTPOptions
}

// NewFTPStore creates an FTPStore. Addr without a port defaults to :21 and an
// empty user logs in anonymously.
func NewFTPStore(opts FTPOptions) *FTPStore {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if _, _, err := net.SplitHostPort(opts.Addr); err != nil && opts.Addr != "" {
		opts.Addr = net.JoinHostPort(opts.Addr, "21")
	}
	if opts.User == "" {
		opts.User, opts.Password = "anonymous", "anonymous@"
	}
	return &FTPStore{opts: opts}
}

func (s *FTPStore) dial(ctx context.Context) (*ftp.ServerConn, error) {
	zap.L().Debug("ftp: connecting", zap.String("addr", s.opts.Addr))

	conn, err := ftp.Dial(s.opts.Addr, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "blob: ftp dial")
	}
	if err := conn.Login(s.opts.User, s.opts.Password); err != nil {
		conn.Quit() //nolint:errcheck,gosec
		return nil, eris.Wrap(err, "blob: ftp login")
	}
	return conn, nil
}

// Read implements Store.
func (s *FTPStore) Read(ctx context.Context, bucket, name string) ([]byte, error) {
	key, err := cleanKey(bucket, name)
	if err != nil {
		return nil, err
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Quit() //nolint:errcheck

	resp, err := conn.Retr("/" + key)
	if isNotFound(err) {
		return nil, eris.Wrapf(ErrNotFound, "blob: ftp read %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "blob: ftp retrieve %s", key)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrapf(err, "blob: ftp read %s", key)
	}
	return data, nil
}

// Write implements Store. Missing directories are created first.
func (s *FTPStore) Write(ctx context.Context, bucket, name string, data []byte, _ string) error {
	key, err := cleanKey(bucket, name)
	if err != nil {
		return err
	}
	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Quit() //nolint:errcheck

	for _, dir := range parentDirs(key) {
		// Already-existing directories answer 550; Stor reports anything real.
		_ = conn.MakeDir(dir)
	}
	if err := conn.Stor("/"+key, bytes.NewReader(data)); err != nil {
		return eris.Wrapf(err, "blob: ftp store %s", key)
	}
	return nil
}

// parentDirs lists every ancestor directory of key, shallowest first.
func parentDirs(key string) []string {
	var dirs []string
	parts := strings.Split(path.Dir(key), "/")
	for i := range parts {
		dirs = append(dirs, "/"+strings.Join(parts[:i+1], "/"))
	}
	return dirs
}

func isNotFound(err error) bool {
	var te *textproto.Error
	return errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable
}
