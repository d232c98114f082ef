package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the required key length in bytes (AES-256).
	KeySize = 32
	// IVSize is the IV length in bytes generated for every Encrypt call.
	IVSize = 16
	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16
)

var (
	// ErrEncrypt is returned when encryption cannot proceed, including
	// key-length violations and IV generation failures.
	ErrEncrypt = errors.New("encryption failed")
	// ErrDecrypt is returned when decryption fails, including authentication
	// tag mismatches. Tampering and wrong-key failures are indistinguishable.
	ErrDecrypt = errors.New("decryption failed")
	// ErrRandom is returned when the entropy source fails.
	ErrRandom = errors.New("random generation failed")
)

// Box carries one encryption result. All three fields are required to
// decrypt; none of them is secret on its own.
type Box struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
}

// Encrypt seals plaintext under a 32-byte key with AES-256-GCM and a fresh
// random 16-byte IV. The returned Box separates ciphertext, IV, and tag so
// they can be embedded as independent token claims.
func Encrypt(plaintext, key []byte) (Box, error) {
	if len(key) != KeySize {
		return Box{}, fmt.Errorf("%w: key must be %d bytes, got %d", ErrEncrypt, KeySize, len(key))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return Box{}, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return Box{}, fmt.Errorf("%w: %v", ErrRandom, err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	if len(sealed) < TagSize {
		return Box{}, fmt.Errorf("%w: sealed output too short", ErrEncrypt)
	}

	// GCM appends the tag to the ciphertext; split it back out.
	split := len(sealed) - TagSize
	return Box{
		Ciphertext: sealed[:split],
		IV:         iv,
		AuthTag:    sealed[split:],
	}, nil
}

// Decrypt opens a Box produced by [Encrypt]. Key, IV, and tag lengths are
// checked before any cipher work. Authentication failure returns [ErrDecrypt]
// without revealing whether the tag or the key was wrong.
//
// GCM verifies the tag over the full ciphertext before releasing any
// plaintext, so a tag failure takes the same path as a successful
// decrypt-then-reject would; no plaintext-dependent early exit exists here.
func Decrypt(box Box, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrDecrypt, KeySize, len(key))
	}
	if len(box.IV) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecrypt, IVSize, len(box.IV))
	}
	if len(box.AuthTag) != TagSize {
		return nil, fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrDecrypt, TagSize, len(box.AuthTag))
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	sealed := make([]byte, 0, len(box.Ciphertext)+TagSize)
	sealed = append(sealed, box.Ciphertext...)
	sealed = append(sealed, box.AuthTag...)

	plaintext, err := gcm.Open(nil, box.IV, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	return plaintext, nil
}

// RandomBytes returns n cryptographically secure random bytes. It fails only
// when the entropy source fails.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0", ErrRandom)
	}

	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandom, err)
	}

	return b, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, IVSize)
}
