package routes

import (
	"crypto/aes"
	"encoding/base64"
	"fmt"
)

const secretKeyLen = 32

// decryptSecret reverses what the environment service applies to stored
// credential values: base64 over AES-256 in ECB mode with PKCS#5
// padding, the key being the configured secret right-padded with zero
// bytes to 32 bytes.
func decryptSecret(encrypted, secretKey string) (string, error) {
	key := make([]byte, secretKeyLen)
	copy(key, secretKey)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("secret length %d is not a multiple of the block size", len(data))
	}

	plain := make([]byte, len(data))
	for off := 0; off < len(data); off += aes.BlockSize {
		block.Decrypt(plain[off:off+aes.BlockSize], data[off:off+aes.BlockSize])
	}

	pad := int(plain[len(plain)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(plain) {
		return "", fmt.Errorf("invalid padding")
	}
	for _, b := range plain[len(plain)-pad:] {
		if int(b) != pad {
			return "", fmt.Errorf("invalid padding")
		}
	}
	return string(plain[:len(plain)-pad]), nil
}
