package remote

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/secrets"
)

// conn is the subset of *ftp.ServerConn used by the source.
type conn interface {
	Login(user, password string) error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	NameList(path string) ([]string, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type dialFunc func(ctx context.Context, addr string, timeout time.Duration) (conn, error)

// serverConn adapts *ftp.ServerConn so Retr returns a plain io.ReadCloser.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (conn, error) {
	c, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
	)
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

// FTPConfig describes where the archives live.
type FTPConfig struct {
	Port      int
	Directory string
	Timeout   time.Duration
}

// FTPDialer logs into the FTP site and changes into the archive directory.
type FTPDialer struct {
	cfg  FTPConfig
	log  zerolog.Logger
	dial dialFunc
}

func NewFTPDialer(cfg FTPConfig, log zerolog.Logger) *FTPDialer {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &FTPDialer{cfg: cfg, log: log, dial: dialFTP}
}

// Dial connects, logs in and enters the configured directory. Any failure
// closes the connection again.
func (d *FTPDialer) Dial(ctx context.Context, creds secrets.Credentials) (Source, error) {
	addr := hostPort(creds.Host, d.cfg.Port)

	d.log.Info().Str("host", addr).Msg("Logging into FTP site")
	c, err := d.dial(ctx, addr, d.cfg.Timeout)
	if err != nil {
		return nil, &ConnectionError{Host: addr, Op: "dial", Err: err}
	}

	if err := c.Login(creds.Username, creds.Password); err != nil {
		_ = c.Quit()
		return nil, &AuthError{Host: addr, User: creds.Username, Err: err}
	}

	if d.cfg.Directory != "" {
		if err := c.ChangeDir(d.cfg.Directory); err != nil {
			_ = c.Quit()
			return nil, &ConnectionError{Host: addr, Op: "cwd " + d.cfg.Directory, Err: err}
		}
	}

	if wd, err := c.CurrentDir(); err == nil {
		d.log.Info().Str("dir", wd).Msg("Working directory")
	}

	return &ftpSource{conn: c, host: addr}, nil
}

func hostPort(host string, port int) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

type ftpSource struct {
	conn conn
	host string
}

func (s *ftpSource) NameList(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.conn.NameList("")
	if err != nil {
		return nil, &ConnectionError{Host: s.host, Op: "nlst", Err: err}
	}

	// some servers answer NLST with paths relative to the login directory
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, path.Base(e))
	}
	return names, nil
}

func (s *ftpSource) Retrieve(ctx context.Context, name string, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r, err := s.conn.Retr(name)
	if err != nil {
		return 0, fmt.Errorf("retr %s: %w", name, err)
	}

	n, copyErr := io.Copy(w, r)
	closeErr := r.Close()
	if copyErr != nil {
		return n, fmt.Errorf("read %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("finish %s: %w", name, closeErr)
	}
	return n, nil
}

func (s *ftpSource) Close() error {
	return s.conn.Quit()
}

var _ Dialer = (*FTPDialer)(nil)
