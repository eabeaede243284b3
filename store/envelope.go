package store

import (
	"bytes"
	"compress/gzip"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
)

const (
	envelopeVersion1 = 1
	envelopeKeySize  = 32
)

// encodeEnvelope serializes, compresses, then encrypts a snapshot.
// Compression runs before the cipher step because the block cipher output
// does not compress.
//
// Layout: version byte || IV || AES-256-CBC(PKCS#7(gzip(json))).
func encodeEnvelope(snap *Snapshot, key []byte) ([]byte, error) {
	if len(key) != envelopeKeySize {
		return nil, ErrInvalidKey
	}

	plain, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}

	var compressed bytes.Buffer
	zw := gzip.NewWriter(&compressed)
	if _, err := zw.Write(plain); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := padPKCS7(compressed.Bytes(), aes.BlockSize)

	out := make([]byte, 1+aes.BlockSize+len(padded))
	out[0] = envelopeVersion1
	iv := out[1 : 1+aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[1+aes.BlockSize:], padded)
	return out, nil
}

// decodeEnvelope reverses encodeEnvelope. Every structural failure is
// reported as [ErrCorrupt] so callers can apply a single recovery policy.
func decodeEnvelope(data, key []byte) (*Snapshot, error) {
	if len(key) != envelopeKeySize {
		return nil, ErrInvalidKey
	}
	if len(data) < 1+aes.BlockSize {
		return nil, fmt.Errorf("%w: short envelope", ErrCorrupt)
	}
	if data[0] != envelopeVersion1 {
		return nil, fmt.Errorf("%w: unknown envelope version %d", ErrCorrupt, data[0])
	}

	iv := data[1 : 1+aes.BlockSize]
	body := data[1+aes.BlockSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block aligned", ErrCorrupt)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, body)

	compressed, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(plain, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return snap, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, fmt.Errorf("invalid padding byte %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, fmt.Errorf("inconsistent padding")
		}
	}
	return data[:len(data)-pad], nil
}

// EncryptSecret encrypts a small secret (for example a TOTP seed) with the
// envelope key so it is never stored in the clear inside the snapshot.
func EncryptSecret(secret, key []byte) ([]byte, error) {
	if len(key) != envelopeKeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := padPKCS7(secret, aes.BlockSize)
	out := make([]byte, aes.BlockSize+len(padded))
	if _, err := io.ReadFull(rand.Reader, out[:aes.BlockSize]); err != nil {
		return nil, err
	}
	cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// DecryptSecret reverses [EncryptSecret].
func DecryptSecret(data, key []byte) ([]byte, error) {
	if len(key) != envelopeKeySize {
		return nil, ErrInvalidKey
	}
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: invalid secret blob", ErrCorrupt)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(padded, data[aes.BlockSize:])

	secret, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return secret, nil
}
