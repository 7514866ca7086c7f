package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the HMAC variant used to sign session tokens.
type SigningMethod string

const (
	MethodHS256 SigningMethod = "hs256"
	MethodHS384 SigningMethod = "hs384"
	MethodHS512 SigningMethod = "hs512"
)

// MinSecretLength is the shortest accepted signing secret, in bytes.
const MinSecretLength = 32

// Config configures a [Codec].
type Config struct {
	Secret []byte
	Method SigningMethod
	Issuer string

	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Payload is the content of a session token.
type Payload struct {
	UserID    string
	UserRole  string
	ExpiresAt time.Time
}

type sessionClaims struct {
	UID  string `json:"uid"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens. A Codec is immutable after construction and safe for
// concurrent use.
type Codec struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, errors.New("session secret must be at least 32 bytes")
	}

	var method jwt.SigningMethod
	switch SigningMethod(strings.ToLower(string(cfg.Method))) {
	case MethodHS256, "":
		method = jwt.SigningMethodHS256
	case MethodHS384:
		method = jwt.SigningMethodHS384
	case MethodHS512:
		method = jwt.SigningMethodHS512
	default:
		return nil, errors.New("unsupported signing method")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	return &Codec{
		secret: secret,
		method: method,
		issuer: cfg.Issuer,
		now:    now,
		parser: jwt.NewParser(options...),
	}, nil
}

// Encrypt signs p into a compact token. The expiry is embedded as an absolute timestamp with
// one-second precision; the issued-at claim is the codec's current time, so two calls with the
// same payload yield different tokens once the clock has advanced.
func (c *Codec) Encrypt(p Payload) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("session payload requires a user id")
	}
	if p.ExpiresAt.IsZero() {
		return "", errors.New("session payload requires an expiry")
	}

	claims := sessionClaims{
		UID:  p.UserID,
		Role: p.UserRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(c.now()),
			Issuer:    c.issuer,
		},
	}

	return jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
}

// Decrypt verifies token and returns its payload. Any failure yields a Result whose OK method
// reports false.
func (c *Codec) Decrypt(token string) Result {
	if token == "" {
		return invalid(ReasonMissing, nil)
	}

	parsed, err := c.parser.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return invalid(classify(err), err)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.UID == "" || claims.ExpiresAt == nil {
		return invalid(ReasonClaims, jwt.ErrTokenInvalidClaims)
	}

	return Result{
		payload: Payload{
			UserID:    claims.UID,
			UserRole:  claims.Role,
			ExpiresAt: claims.ExpiresAt.Time,
		},
		ok: true,
	}
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	default:
		return ReasonClaims
	}
}
