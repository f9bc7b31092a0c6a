package credstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/pkg/errors"
)

// Versioned prefix so the algorithm or key can be rotated without migrating data.
const cipherPrefixV1 = "v1:"

// Encryptor encrypts and decrypts stored values.
type Encryptor interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(ciphertext string) ([]byte, error)
}

// AESGCMEncryptor implements Encryptor using AES-256-GCM.
type AESGCMEncryptor struct {
	key []byte // 32 bytes
}

// NewAESGCMEncryptor constructs an encryptor. Key must be 32 bytes.
func NewAESGCMEncryptor(key []byte) (*AESGCMEncryptor, error) {
	if len(key) != 32 {
		return nil, errors.Errorf("[NewAESGCMEncryptor] aes-gcm key must be 32 bytes, got %d", len(key))
	}
	return &AESGCMEncryptor{key: append([]byte(nil), key...)}, nil
}

// NewAESGCMEncryptorFromPassphrase derives the key with SHA-256. Use it for
// human-entered secrets such as AUTH_STORE_KEY.
func NewAESGCMEncryptorFromPassphrase(passphrase string) (*AESGCMEncryptor, error) {
	if passphrase == "" {
		return nil, errors.New("[NewAESGCMEncryptorFromPassphrase] empty passphrase")
	}
	sum := sha256.Sum256([]byte(passphrase))
	return NewAESGCMEncryptor(sum[:])
}

func (e *AESGCMEncryptor) Encrypt(plaintext []byte) (string, error) {
	gcm, err := e.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "[AESGCMEncryptor.Encrypt] nonce")
	}
	// nonce||ciphertext
	buf := gcm.Seal(nonce, nonce, plaintext, nil)
	return cipherPrefixV1 + base64.StdEncoding.EncodeToString(buf), nil
}

func (e *AESGCMEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, cipherPrefixV1) {
		return nil, errors.New("[AESGCMEncryptor.Decrypt] unknown ciphertext version")
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext[len(cipherPrefixV1):])
	if err != nil {
		return nil, errors.Wrap(err, "[AESGCMEncryptor.Decrypt] base64")
	}
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("[AESGCMEncryptor.Decrypt] ciphertext too short")
	}
	pt, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "[AESGCMEncryptor.Decrypt] open")
	}
	return pt, nil
}

func (e *AESGCMEncryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, errors.Wrap(err, "[AESGCMEncryptor] NewCipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[AESGCMEncryptor] NewGCM")
	}
	return gcm, nil
}

var _ BatchStore = (*EncryptedStore)(nil)

// EncryptedStore encrypts values at rest on top of any other Store. Keys are
// kept in plain text.
type EncryptedStore struct {
	inner Store
	enc   Encryptor
}

func NewEncryptedStore(inner Store, enc Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc}
}

func (s *EncryptedStore) Set(ctx context.Context, key, value string) error {
	ct, err := s.enc.Encrypt([]byte(value))
	if err != nil {
		return autherrors.NewStorageError("set", key, err)
	}
	return s.inner.Set(ctx, key, ct)
}

func (s *EncryptedStore) Get(ctx context.Context, key string) (string, bool, error) {
	ct, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	pt, err := s.enc.Decrypt(ct)
	if err != nil {
		return "", false, autherrors.NewStorageError("get", key, err)
	}
	return string(pt), true, nil
}

func (s *EncryptedStore) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}

func (s *EncryptedStore) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}

// SetMany encrypts every value first; nothing is written if any encryption fails.
func (s *EncryptedStore) SetMany(ctx context.Context, values map[string]string) error {
	encrypted := make(map[string]string, len(values))
	for k, v := range values {
		ct, err := s.enc.Encrypt([]byte(v))
		if err != nil {
			return autherrors.NewStorageError("set", k, err)
		}
		encrypted[k] = ct
	}
	return setAll(ctx, s.inner, encrypted)
}

func (s *EncryptedStore) RemoveMany(ctx context.Context, keys []string) error {
	if bs, ok := s.inner.(BatchStore); ok {
		return bs.RemoveMany(ctx, keys)
	}
	for _, k := range keys {
		if err := s.inner.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
