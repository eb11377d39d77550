package kvstore

import (
	"bytes"
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	fileMagic       = "GSK1"
	fileSaltLen     = 16
	filePermissions = 0o600
	dirPermissions  = 0o700
)

// ErrDecrypt is returned by NewFile when the file cannot be authenticated
// with the given passphrase.
var ErrDecrypt = errors.New("kvstore: cannot decrypt file (wrong passphrase or corrupt file)")

// File keeps every key in one encrypted file. The whole map is rewritten
// atomically on each mutation.
type File struct {
	path string
	salt []byte
	aead cipher.AEAD

	mu   sync.Mutex
	data map[string][]byte
}

// NewFile opens (or prepares to create) the encrypted store at path.
func NewFile(path string, passphrase []byte) (*File, error) {
	f := &File{path: path, data: make(map[string][]byte)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		f.salt = make([]byte, fileSaltLen)
		if _, err := io.ReadFull(rand.Reader, f.salt); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("kvstore: read %s: %w", path, err)
	default:
		if len(raw) < len(fileMagic)+fileSaltLen || string(raw[:len(fileMagic)]) != fileMagic {
			return nil, ErrDecrypt
		}
		f.salt = append([]byte(nil), raw[len(fileMagic):len(fileMagic)+fileSaltLen]...)
	}

	key, err := password.DeriveKey(passphrase, f.salt, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	if f.aead, err = chacha20poly1305.NewX(key); err != nil {
		return nil, err
	}

	if raw != nil {
		if err := f.decrypt(raw[len(fileMagic)+fileSaltLen:]); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.data[key]
	f.data[key] = append([]byte(nil), value...)
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.data[key]
	if !ok {
		return nil
	}
	delete(f.data, key)
	if err := f.flush(); err != nil {
		f.data[key] = prev
		return err
	}
	return nil
}

func (f *File) decrypt(body []byte) error {
	ns := f.aead.NonceSize()
	if len(body) < ns+f.aead.Overhead() {
		return ErrDecrypt
	}
	plain, err := f.aead.Open(nil, body[:ns], body[ns:], []byte(fileMagic))
	if err != nil {
		return ErrDecrypt
	}
	if err := json.Unmarshal(plain, &f.data); err != nil {
		return ErrDecrypt
	}
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	return nil
}

func (f *File) flush() error {
	plain, err := json.Marshal(f.data)
	if err != nil {
		return err
	}
	nonce := make([]byte, f.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(fileMagic)
	buf.Write(f.salt)
	buf.Write(nonce)
	buf.Write(f.aead.Seal(nil, nonce, plain, []byte(fileMagic)))

	return writeAtomic(f.path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("kvstore: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".kvstore-*")
	if err != nil {
		return fmt.Errorf("kvstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("kvstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("kvstore: close: %w", err)
	}
	if err := os.Chmod(tmpName, filePermissions); err != nil {
		return fmt.Errorf("kvstore: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("kvstore: rename: %w", err)
	}
	return nil
}
