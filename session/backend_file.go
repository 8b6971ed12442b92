package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"
)

const credentialFileName = "credentials"

// FileBackend stores the credential blob in a single file. Writes go through a
// temporary file in the same directory followed by a rename, so readers see
// either the previous blob or the new one.
type FileBackend struct {
	path     string
	identity *age.X25519Identity
}

// FileOption configures a [FileBackend].
type FileOption func(*FileBackend)

// WithAgeIdentity encrypts the blob at rest to identity's recipient and
// decrypts it with identity.
func WithAgeIdentity(identity *age.X25519Identity) FileOption {
	return func(b *FileBackend) {
		b.identity = identity
	}
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string, opts ...FileOption) *FileBackend {
	b := &FileBackend{path: path}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// DefaultPath returns the credential file location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return filepath.Join(dir, "sentimenta", credentialFileName), nil
}

// LoadAgeIdentity reads the first X25519 identity from an age identity file.
func LoadAgeIdentity(path string) (*age.X25519Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open age identity: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse age identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return x, nil
		}
	}
	return nil, errors.New("age identity file has no X25519 identity")
}

// Path returns the file the backend writes to.
func (b *FileBackend) Path() string {
	return b.path
}

// Load implements [Backend].
func (b *FileBackend) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if b.identity == nil {
		return data, nil
	}

	reader, err := age.Decrypt(bytes.NewReader(data), b.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential file: %w", err)
	}
	return io.ReadAll(reader)
}

// Save implements [Backend].
func (b *FileBackend) Save(_ context.Context, blob []byte) error {
	data := blob
	if b.identity != nil {
		var buf bytes.Buffer
		w, err := age.Encrypt(&buf, b.identity.Recipient())
		if err != nil {
			return fmt.Errorf("create age encryptor: %w", err)
		}
		if _, err := w.Write(blob); err != nil {
			return fmt.Errorf("encrypt credential: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalize age encryption: %w", err)
		}
		data = buf.Bytes()
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		cleanup()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		cleanup()
		return fmt.Errorf("rename credential file: %w", err)
	}
	return nil
}

// Delete implements [Backend].
func (b *FileBackend) Delete(context.Context) error {
	err := os.Remove(b.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// IsEncrypted reports whether the backend encrypts at rest.
func (b *FileBackend) IsEncrypted() bool {
	return b.identity != nil
}
