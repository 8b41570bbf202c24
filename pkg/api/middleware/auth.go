package middleware

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"forgehq/loom/pkg/api/types"
	"forgehq/loom/pkg/telemetry/logging"
)

// AuthConfig configures the shared-secret request guard.
type AuthConfig struct {
	// Secret is the plaintext the guard expects after decrypting the
	// Authorization header. Empty disables the guard.
	Secret string

	// AESKey is the key derivation input.
	AESKey string

	// AESIV is the IV derivation input.
	AESIV string
}

// AuthMiddleware verifies the Authorization header against a shared
// secret. The header value is the base64-encoded AES-256-CBC ciphertext
// of the secret; the key is the first 32 hex characters of the SHA-512
// digest of AESKey, the IV the first 16 of AESIV. A missing header,
// malformed ciphertext or wrong secret all get the same 401 response.
//
// A nil config or empty Secret disables the guard.
//
// Example usage:
//
//	handler = AuthMiddleware(&AuthConfig{Secret: s, AESKey: k, AESIV: iv})(handler)
func AuthMiddleware(config *AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if config == nil || config.Secret == "" {
			return next
		}

		key := deriveKey(config.AESKey)
		iv := deriveIV(config.AESIV)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeUnauthorized(w, r, "missing header")
				return
			}

			secret, err := decryptAuthorization(header, key, iv)
			if err != nil {
				writeUnauthorized(w, r, "decrypt failed")
				return
			}

			if subtle.ConstantTimeCompare(secret, []byte(config.Secret)) != 1 {
				writeUnauthorized(w, r, "secret mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// EncryptSecret produces the Authorization header value a client must
// present: the base64-encoded AES-256-CBC ciphertext of secret under
// the derived key and IV.
func EncryptSecret(secret, keyInput, ivInput string) (string, error) {
	block, err := aes.NewCipher(deriveKey(keyInput))
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(secret), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, deriveIV(ivInput)).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// deriveKey returns the 32-byte AES-256 key: the first 32 hex
// characters of the SHA-512 digest of the input.
func deriveKey(input string) []byte {
	sum := sha512.Sum512([]byte(input))
	return []byte(hex.EncodeToString(sum[:])[:32])
}

// deriveIV returns the 16-byte IV: the first 16 hex characters of the
// SHA-512 digest of the input.
func deriveIV(input string) []byte {
	sum := sha512.Sum512([]byte(input))
	return []byte(hex.EncodeToString(sum[:])[:16])
}

// decryptAuthorization decodes and decrypts a header value. The
// returned slice is the unpadded plaintext.
func decryptAuthorization(header string, key, iv []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, errors.New("malformed base64")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext not block aligned")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}

	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("invalid padding")
		}
	}

	return data[:len(data)-padding], nil
}

// writeUnauthorized rejects the request with the uniform 401 envelope.
// The reason goes to the log only; the header value is never logged.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	slog.WarnContext(r.Context(), "unauthorized request",
		"reason", reason,
		"request_id", logging.GetRequestID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	errResp := types.NewUnauthorizedError("Invalid or missing credentials")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errResp)
}
