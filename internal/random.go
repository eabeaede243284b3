package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	opaqueTokenBytes = 32
	recoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	recoveryGroupLen = 4
	recoveryGroups   = 2
)

// NewOTP generates a numeric one-time code of the given length using
// crypto/rand for every digit.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// NewOpaqueToken generates a high-entropy URL-safe token for link flows.
func NewOpaqueToken() (string, error) {
	raw := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewRecoveryCode generates one human-formatted recovery code, grouped as
// XXXX-XXXX over an alphabet without lookalike characters.
func NewRecoveryCode() (string, error) {
	var b strings.Builder
	b.Grow(recoveryGroups*recoveryGroupLen + recoveryGroups - 1)

	max := big.NewInt(int64(len(recoveryAlphabet)))
	for g := 0; g < recoveryGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < recoveryGroupLen; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			b.WriteByte(recoveryAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// HashSecret returns the SHA-256 digest stored in place of a plaintext
// code or token.
func HashSecret(secret string) []byte {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.ToUpper(secret))))
	return sum[:]
}

// HashSecretExact hashes without normalization, for case-sensitive tokens.
func HashSecretExact(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}
