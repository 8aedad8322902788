// Package remote reads archives from the DeltaNeutral FTP site.
package remote

import (
	"context"
	"fmt"
	"io"

	"github.com/pkgit123/deltaneutral-ftp-s3/internal/secrets"
)

// Source is an open session on the remote file site, already positioned in
// the archive directory.
type Source interface {
	// NameList returns the entry names of the current directory in the
	// order the server reports them.
	NameList(ctx context.Context) ([]string, error)
	// Retrieve copies the whole file into w and returns the byte count.
	Retrieve(ctx context.Context, name string, w io.Writer) (int64, error)
	Close() error
}

// Dialer opens a Source with the given login.
type Dialer interface {
	Dial(ctx context.Context, creds secrets.Credentials) (Source, error)
}

// ConnectionError covers failures to reach the site or to enter the
// configured directory.
type ConnectionError struct {
	Host string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("remote %s: %s: %v", e.Host, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthError is returned when the site rejects the login.
type AuthError struct {
	Host string
	User string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("remote %s: login as %q rejected: %v", e.Host, e.User, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
