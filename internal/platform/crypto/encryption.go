package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Algorithm tags the cipher used to produce an envelope. Stored next
	// to the ciphertext so future ciphers can coexist during rotation.
	Algorithm = "aes-256-gcm"

	// KeyID identifies which derived key encrypted an envelope.
	KeyID = "v1"

	minSecretLength = 32
	pbkdf2Iters     = 100_000
	keyLength       = 32
)

// keyDerivationSalt is fixed and versioned together with KeyID. Changing
// it requires re-encrypting every stored envelope under a new KeyID.
var keyDerivationSalt = []byte("slackmemory-token-encryption-v1")

var (
	ErrSecretTooShort = errors.New("master secret must be at least 32 characters")
	ErrDecryptFailed  = errors.New("decryption failed")
)

// Envelope is the storable form of an encrypted secret. Ciphertext is
// base64(nonce || aes-gcm ciphertext).
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Algorithm  string `json:"algorithm"`
	KeyID      string `json:"keyId"`
}

type Service struct {
	key   []byte
	keyID string
}

func New(masterSecret string) (*Service, error) {
	if len(masterSecret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	key := pbkdf2.Key([]byte(masterSecret), keyDerivationSalt, pbkdf2Iters, keyLength, sha256.New)
	return &Service{key: key, keyID: KeyID}, nil
}

// NewWithKeyID derives a key for a non-default key identifier. Used by
// the key rotation batch job to hold the old and new key side by side.
func NewWithKeyID(masterSecret, keyID string) (*Service, error) {
	if len(masterSecret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	salt := append([]byte("slackmemory-token-encryption-"), []byte(keyID)...)
	key := pbkdf2.Key([]byte(masterSecret), salt, pbkdf2Iters, keyLength, sha256.New)
	return &Service{key: key, keyID: keyID}, nil
}

func (s *Service) KeyID() string {
	return s.keyID
}

func (s *Service) Encrypt(plaintext string) (Envelope, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return Envelope{}, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, err
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(append(nonce, sealed...)),
		Algorithm:  Algorithm,
		KeyID:      s.keyID,
	}, nil
}

func (s *Service) Decrypt(env Envelope) (string, error) {
	if env.Algorithm != Algorithm {
		return "", fmt.Errorf("%w: unsupported algorithm %q", ErrDecryptFailed, env.Algorithm)
	}
	if env.KeyID != s.keyID {
		return "", fmt.Errorf("%w: envelope key %q does not match service key %q", ErrDecryptFailed, env.KeyID, s.keyID)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptFailed)
	}
	nonce := raw[:gcm.NonceSize()]
	data := raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	return string(plain), nil
}
