// Package secretsource reads database credentials from a directory of flat
// files maintained by an external secrets manager (for example a Vault agent
// or CSI volume mount). Every read goes back to storage so that out-of-band
// rotation is observed.
package secretsource

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/pkg/credential"
)

// Logical secret names, which are also the file names under the base dir.
const (
	NameUsername = "username"
	NamePassword = "password"
	NameURL      = "jdbc-url"
)

// DefaultPath is where the secrets manager mounts the files by default.
const DefaultPath = "/var/run/secrets/database"

// Reader reads individual secret files. It holds no state besides its
// filesystem and is safe for concurrent use.
type Reader struct {
	fs     billy.Filesystem
	logger *logging.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger used for debug tracing of reads.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// NewReader returns a Reader over fs. Names are resolved relative to the
// filesystem root.
func NewReader(fs billy.Filesystem, opts ...Option) *Reader {
	r := &Reader{
		fs:     fs,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDirReader returns a Reader over the host directory dir.
func NewDirReader(dir string, opts ...Option) *Reader {
	return NewReader(osfs.New(dir), opts...)
}

// Root returns the base location of the secret files.
func (r *Reader) Root() string {
	return r.fs.Root()
}

// Read returns the trimmed UTF-8 content of the named secret file.
// Any failure is reported as an *UnavailableError.
func (r *Reader) Read(name string) (string, error) {
	data, err := util.ReadFile(r.fs, name)
	if err != nil {
		return "", &UnavailableError{Name: name, Path: r.path(name), Err: err}
	}
	if !utf8.Valid(data) {
		return "", &UnavailableError{Name: name, Path: r.path(name), Err: errInvalidUTF8}
	}

	value := strings.TrimSpace(string(data))
	r.logger.Debug("Read %s from %s", name, r.fs.Root())
	return value, nil
}

// Username reads the username file.
func (r *Reader) Username() (string, error) {
	return r.Read(NameUsername)
}

// Password reads the password file.
func (r *Reader) Password() (string, error) {
	return r.Read(NamePassword)
}

// ConnectionString reads the optional connection string file.
func (r *Reader) ConnectionString() (string, error) {
	return r.Read(NameURL)
}

// Pair reads username and password for first use. Unlike a polling read, the
// caller cannot proceed without a value, so any error should be treated as
// fatal.
func (r *Reader) Pair() (credential.Pair, error) {
	username, err := r.Username()
	if err != nil {
		return credential.Pair{}, fmt.Errorf("read initial credentials: %w", err)
	}
	password, err := r.Password()
	if err != nil {
		return credential.Pair{}, fmt.Errorf("read initial credentials: %w", err)
	}
	return credential.NewPair(username, password), nil
}

func (r *Reader) path(name string) string {
	return path.Join(r.fs.Root(), name)
}
