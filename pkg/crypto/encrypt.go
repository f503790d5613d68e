package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// Ошибки шифрования
var (
	ErrInvalidKeyLength   = errors.New("encryption key must be exactly 32 bytes for AES-256")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrDecryptionFailed   = errors.New("decryption failed: authentication error")
)

// KeySize - длина ключа AES-256
const KeySize = 32

// credentialsInfo - контекст HKDF для ключей учетных данных брокеров
const credentialsInfo = "tradejournal/broker-credentials/user:"

// Encrypt шифрует plaintext с использованием AES-256-GCM
// Возвращает base64-encoded строку (nonce || ciphertext || tag)
func Encrypt(plaintext string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt расшифровывает base64-encoded ciphertext с использованием AES-256-GCM
func Decrypt(ciphertextBase64 string, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextBase64)
	if err != nil {
		return "", ErrInvalidCiphertext
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	nonce, data := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Vault шифрует учетные данные брокеров ключом, производным от мастер-ключа.
//
// Для каждого пользователя ключ выводится через HKDF-SHA256, поэтому blob
// одного пользователя не расшифровывается ключом другого.
type Vault struct {
	master []byte
}

// NewVault создает Vault из мастер-ключа (ENCRYPTION_KEY, ровно 32 байта)
func NewVault(masterKey string) (*Vault, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	return &Vault{master: []byte(masterKey)}, nil
}

// UserKey выводит ключ пользователя из мастер-ключа
func (v *Vault) UserKey(userID int64) ([]byte, error) {
	reader := hkdf.New(sha256.New, v.master, nil, []byte(credentialsInfo+strconv.FormatInt(userID, 10)))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal шифрует plaintext ключом пользователя
func (v *Vault) Seal(userID int64, plaintext string) (string, error) {
	key, err := v.UserKey(userID)
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, key)
}

// Open расшифровывает blob ключом пользователя
func (v *Vault) Open(userID int64, sealed string) (string, error) {
	key, err := v.UserKey(userID)
	if err != nil {
		return "", err
	}
	return Decrypt(sealed, key)
}

// GenerateKey генерирует криптографически стойкий случайный ключ (32 байта для AES-256)
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateKeyString генерирует печатаемый ключ из 32 hex-символов (для .env файла)
func GenerateKeyString() (string, error) {
	raw := make([]byte, KeySize/2)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// ValidateKey проверяет, что ключ имеет правильную длину
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		return ErrInvalidKeyLength
	}
	return nil
}
