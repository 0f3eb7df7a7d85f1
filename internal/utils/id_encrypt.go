package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
)

// EncryptID turns a numeric row id into an opaque url-safe string.
// With an empty key the id is returned as plain digits.
func EncryptID(id uint, key string) (string, error) {
	plaintext := []byte(strconv.FormatUint(uint64(id), 10))
	if key == "" {
		return string(plaintext), nil
	}

	block, err := newBlock(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(plaintext))
	iv := ciphertext[:aes.BlockSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to read random iv: %w", err)
	}

	cipher.NewCTR(block, iv).XORKeyStream(ciphertext[aes.BlockSize:], plaintext)
	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// DecryptID reverses EncryptID. Plain numeric ids are accepted only without a key.
func DecryptID(enc string, key string) (uint, error) {
	if enc == "" {
		return 0, fmt.Errorf("empty encrypted id")
	}
	if key == "" {
		n, err := strconv.ParseUint(enc, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid id %q", enc)
		}
		return uint(n), nil
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return 0, fmt.Errorf("decode base64 failed: %w", err)
	}
	if len(ciphertext) <= aes.BlockSize {
		return 0, fmt.Errorf("ciphertext too short: len=%d", len(ciphertext))
	}

	block, err := newBlock(key)
	if err != nil {
		return 0, err
	}

	iv := ciphertext[:aes.BlockSize]
	body := ciphertext[aes.BlockSize:]
	plaintext := make([]byte, len(body))
	cipher.NewCTR(block, iv).XORKeyStream(plaintext, body)

	n, err := strconv.ParseUint(string(plaintext), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id failed: %w", err)
	}
	return uint(n), nil
}

func newBlock(key string) (cipher.Block, error) {
	k := []byte(key)
	if len(k) != 16 && len(k) != 24 && len(k) != 32 {
		return nil, fmt.Errorf("invalid key length: %d (must be 16/24/32)", len(k))
	}
	return aes.NewCipher(k)
}
