package storage

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var _ KV = (*File)(nil)

// File is a KV persisted as a single sealed file. The whole key-value map is
// encrypted with XChaCha20-Poly1305 so tokens and flow state are not written
// to disk in the clear on hosts without an OS keychain.
type File struct {
	path string
	key  []byte
	lock sync.Mutex
}

// NewFile opens (or lazily creates) the sealed store at path. key must be
// exactly chacha20poly1305.KeySize (32) bytes.
func NewFile(path string, key []byte) (*File, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Errorf("[NewFile] key must be %d bytes", chacha20poly1305.KeySize)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFile] os.MkdirAll")
	}
	return &File{path: path, key: key}, nil
}

func (f *File) Get(key string) (string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	values[key] = value
	return f.save(values)
}

func (f *File) Delete(key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	delete(values, key)
	return f.save(values)
}

func (f *File) load() (map[string]string, error) {
	sealed, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[File.load] os.ReadFile")
	}

	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return nil, errors.Wrap(err, "[File.load] chacha20poly1305.NewX")
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("[File.load] store file truncated")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[File.load] aead.Open")
	}

	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, errors.Wrap(err, "[File.load] json.Unmarshal")
	}
	return values, nil
}

func (f *File) save(values map[string]string) error {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "[File.save] json.Marshal")
	}

	aead, err := chacha20poly1305.NewX(f.key)
	if err != nil {
		return errors.Wrap(err, "[File.save] chacha20poly1305.NewX")
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[File.save] rand.Read")
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	// Write-then-rename keeps a crash from leaving a half-written store.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return errors.Wrap(err, "[File.save] os.WriteFile")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "[File.save] os.Rename")
	}
	return nil
}
