package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	minIterations uint32 = 10_000
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	algorithmID          = "pbkdf2-sha256"
)

// Config holds PBKDF2 derivation parameters.
type Config struct {
	Iterations uint32
	SaltLength uint32
	KeyLength  uint32
}

// PBKDF2 derives and verifies salted password hashes with a fixed iteration
// count. Instances are immutable after construction and safe for concurrent
// use.
type PBKDF2 struct {
	config Config
}

type parsedPHC struct {
	iterations uint32
	salt       []byte
	hash       []byte
}

// NewPBKDF2 validates the configuration and returns a hasher.
func NewPBKDF2(cfg Config) (*PBKDF2, error) {
	if cfg.Iterations < minIterations {
		return nil, fmt.Errorf("iterations below minimum %d", minIterations)
	}
	if cfg.SaltLength < minSaltLength {
		return nil, fmt.Errorf("salt length below minimum %d", minSaltLength)
	}
	if cfg.KeyLength < minKeyLength {
		return nil, fmt.Errorf("key length below minimum %d", minKeyLength)
	}
	return &PBKDF2{config: cfg}, nil
}

// Hash derives a PHC-encoded hash with an independent random salt.
func (p *PBKDF2) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}

	salt := make([]byte, p.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := pbkdf2.Key([]byte(password), salt, int(p.config.Iterations), int(p.config.KeyLength), sha256.New)

	return fmt.Sprintf(
		"$%s$i=%d$%s$%s",
		algorithmID,
		p.config.Iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify recomputes the derivation with the stored salt and compares in
// constant time.
func (p *PBKDF2) Verify(password, encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := pbkdf2.Key([]byte(password), parsed.salt, int(parsed.iterations), len(parsed.hash), sha256.New)
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether the stored hash was produced with weaker
// parameters than the active configuration.
func (p *PBKDF2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}
	if p.config.Iterations > parsed.iterations {
		return true, nil
	}
	if uint32(len(parsed.hash)) != p.config.KeyLength {
		return true, nil
	}
	return false, nil
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	if !strings.HasPrefix(parts[2], "i=") {
		return nil, errors.New("missing iteration count")
	}
	iterations, err := strconv.ParseUint(strings.TrimPrefix(parts[2], "i="), 10, 32)
	if err != nil || uint32(iterations) < minIterations {
		return nil, errors.New("invalid iteration count")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < int(minSaltLength) {
		return nil, errors.New("invalid salt length")
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(hash) < int(minKeyLength) {
		return nil, errors.New("invalid hash length")
	}

	return &parsedPHC{
		iterations: uint32(iterations),
		salt:       salt,
		hash:       hash,
	}, nil
}
