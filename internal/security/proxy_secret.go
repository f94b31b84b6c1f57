package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	ProxyEncryptionKeyEnv = "PROXY_ENCRYPTION_KEY"
	ProxyEncryptionPrefix = "enc:"

	hkdfInfo = "proxysheet proxy secret v1"
)

// ErrNoEncryptionKey indicates that PROXY_ENCRYPTION_KEY is empty.
var ErrNoEncryptionKey = errors.New("proxy encryption key not set: " + ProxyEncryptionKeyEnv)

// ProxyCipher seals proxy secrets with AES-256-GCM.
type ProxyCipher struct {
	gcm cipher.AEAD
}

// ProxyCipherFromEnv builds a cipher from PROXY_ENCRYPTION_KEY.
func ProxyCipherFromEnv() (*ProxyCipher, error) {
	return NewProxyCipher(os.Getenv(ProxyEncryptionKeyEnv))
}

func NewProxyCipher(rawKey string) (*ProxyCipher, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, ErrNoEncryptionKey
	}

	key, err := deriveProxyKey(rawKey)
	if err != nil {
		return nil, fmt.Errorf("derive proxy key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &ProxyCipher{gcm: gcm}, nil
}

// deriveProxyKey stretches the configured secret (base64 or passphrase) into a
// 32 byte key with HKDF-SHA256.
func deriveProxyKey(raw string) ([]byte, error) {
	secret, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || len(secret) == 0 {
		secret = []byte(raw)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, err
	}
	return key, nil
}

func (pc *ProxyCipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	nonce := make([]byte, pc.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	cipherText := pc.gcm.Seal(nil, nonce, []byte(plain), nil)
	payload := append(nonce, cipherText...)

	return ProxyEncryptionPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// Decrypt returns the plain secret. Values without the "enc:" prefix are
// returned unchanged with legacy=true.
func (pc *ProxyCipher) Decrypt(value string) (plain string, legacy bool, err error) {
	if value == "" {
		return "", false, nil
	}

	if !strings.HasPrefix(value, ProxyEncryptionPrefix) {
		return value, true, nil
	}

	encoded := strings.TrimPrefix(value, ProxyEncryptionPrefix)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", true, fmt.Errorf("decode ciphertext: %w", err)
	}

	nonceSize := pc.gcm.NonceSize()
	if len(data) <= nonceSize {
		return "", true, errors.New("ciphertext too short")
	}

	nonce := data[:nonceSize]
	cipherText := data[nonceSize:]

	decrypted, err := pc.gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", true, fmt.Errorf("decrypt ciphertext: %w", err)
	}

	return string(decrypted), false, nil
}

func IsProxySecretEncrypted(value string) bool {
	return strings.HasPrefix(value, ProxyEncryptionPrefix)
}
