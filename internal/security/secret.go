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
	"sync"
)

// Secrets stored inside the settings file (the SOCKS5 proxy URL and the
// MaxMind license key) are sealed with AES-GCM when an encryption key is
// present in the environment. Values written before the key existed stay
// readable and are reported as legacy.
const (
	encryptionKeyEnv = "SETTINGS_ENCRYPTION_KEY"
	EncryptionPrefix = "enc:"
)

// ErrNoEncryptionKey indicates that no encryption key is configured.
var ErrNoEncryptionKey = errors.New("settings encryption key not set: " + encryptionKeyEnv)

var (
	cipherOnce sync.Once
	cipherInst *settingsCipher
	cipherErr  error
)

type settingsCipher struct {
	gcm cipher.AEAD
}

func getCipher() (*settingsCipher, error) {
	cipherOnce.Do(func() {
		rawKey := strings.TrimSpace(os.Getenv(encryptionKeyEnv))
		if rawKey == "" {
			cipherErr = ErrNoEncryptionKey
			return
		}

		key, err := deriveKey(rawKey)
		if err != nil {
			cipherErr = fmt.Errorf("derive key: %w", err)
			return
		}

		block, err := aes.NewCipher(key)
		if err != nil {
			cipherErr = fmt.Errorf("create cipher: %w", err)
			return
		}

		gcm, err := cipher.NewGCM(block)
		if err != nil {
			cipherErr = fmt.Errorf("create gcm: %w", err)
			return
		}

		cipherInst = &settingsCipher{gcm: gcm}
	})

	return cipherInst, cipherErr
}

func deriveKey(raw string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err == nil {
		return normalizeKey(decoded), nil
	}

	sum := sha256.Sum256([]byte(raw))
	return sum[:], nil
}

func normalizeKey(key []byte) []byte {
	switch len(key) {
	case 16, 24, 32:
		return key
	default:
		sum := sha256.Sum256(key)
		return sum[:]
	}
}

func EncryptSecret(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	sc, err := getCipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, sc.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	cipherText := sc.gcm.Seal(nil, nonce, []byte(plain), nil)
	payload := append(nonce, cipherText...)

	return EncryptionPrefix + base64.StdEncoding.EncodeToString(payload), nil
}

// DecryptSecret returns the plaintext value. The second return value reports
// whether the input was a legacy cleartext value rather than a sealed one.
func DecryptSecret(value string) (string, bool, error) {
	if value == "" {
		return "", false, nil
	}

	if !strings.HasPrefix(value, EncryptionPrefix) {
		return value, true, nil
	}

	encoded := strings.TrimPrefix(value, EncryptionPrefix)
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", true, fmt.Errorf("decode ciphertext: %w", err)
	}

	sc, err := getCipher()
	if err != nil {
		return "", false, err
	}

	nonceSize := sc.gcm.NonceSize()
	if len(data) <= nonceSize {
		return "", true, errors.New("ciphertext too short")
	}

	nonce := data[:nonceSize]
	cipherText := data[nonceSize:]

	plain, err := sc.gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", true, fmt.Errorf("decrypt ciphertext: %w", err)
	}

	return string(plain), false, nil
}

func IsSecretEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptionPrefix)
}

func ResetCipherForTests() {
	cipherOnce = sync.Once{}
	cipherInst = nil
	cipherErr = nil
}
