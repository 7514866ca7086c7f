package pin

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
	algorithmID          = "argon2id"

	// MinDigits and MaxDigits bound the PIN length.
	MinDigits = 4
	MaxDigits = 8
)

// ErrMalformed is returned for a PIN that is not 4 to 8 ASCII digits.
var ErrMalformed = errors.New("pin must be 4 to 8 digits")

// HashConfig holds the Argon2id cost parameters.
type HashConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashConfig returns parameters suited to an interactive unlock on a client device.
func DefaultHashConfig() HashConfig {
	return HashConfig{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Validate checks the cost parameters against the enforced minimums.
func (c HashConfig) Validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("pin hash memory must be >= %d KB", minMemoryKB)
	case c.Time < 1:
		return errors.New("pin hash time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("pin hash parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("pin salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("pin key length must be >= %d", minKeyLength)
	}
	return nil
}

// Hasher hashes and verifies PINs with Argon2id.
type Hasher struct {
	cfg HashConfig
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg HashConfig) (*Hasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Hasher{cfg: cfg}, nil
}

// CheckFormat reports whether p is an acceptable PIN.
func CheckFormat(p string) error {
	if len(p) < MinDigits || len(p) > MaxDigits {
		return ErrMalformed
	}
	for i := 0; i < len(p); i++ {
		if p[i] < '0' || p[i] > '9' {
			return ErrMalformed
		}
	}
	return nil
}

// Hash returns the PHC encoding of p.
func (h *Hasher) Hash(p string) (string, error) {
	if err := CheckFormat(p); err != nil {
		return "", err
	}

	salt := make([]byte, h.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(p), salt, h.cfg.Time, h.cfg.Memory, h.cfg.Parallelism, h.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		h.cfg.Memory, h.cfg.Time, h.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether p matches encoded. The parameters embedded in encoded are used,
// not the hasher's own.
func (h *Hasher) Verify(p, encoded string) (bool, error) {
	ph, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if CheckFormat(p) != nil {
		return false, nil
	}
	key := argon2.IDKey([]byte(p), ph.salt, ph.time, ph.memory, ph.parallelism, uint32(len(ph.key)))
	return subtle.ConstantTimeCompare(key, ph.key) == 1, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func parsePHC(encoded string) (phc, error) {
	var out phc

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return out, errors.New("invalid pin hash format")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return out, errors.New("unsupported argon2 version")
	}

	seen := 0
	for _, pair := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return out, errors.New("invalid pin hash parameter")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return out, fmt.Errorf("invalid pin hash parameter %q", k)
		}
		switch k {
		case "m":
			if n < uint64(minMemoryKB) {
				return out, errors.New("pin hash memory below minimum")
			}
			out.memory = uint32(n)
		case "t":
			out.time = uint32(n)
		case "p":
			if n > 255 {
				return out, errors.New("pin hash parallelism out of range")
			}
			out.parallelism = uint8(n)
		default:
			return out, fmt.Errorf("unsupported pin hash parameter %q", k)
		}
		seen++
	}
	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return out, errors.New("missing pin hash parameters")
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(out.salt) < int(minSaltLength) {
		return out, errors.New("invalid pin salt")
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(out.key) < int(minKeyLength) {
		return out, errors.New("invalid pin hash")
	}
	return out, nil
}
