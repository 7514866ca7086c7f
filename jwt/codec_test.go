package jwt

import (
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestCodec(t *testing.T, now func() time.Time) *Codec {
	t.Helper()
	c, err := NewCodec(Config{Secret: testSecret, Method: MethodHS256, Now: now})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return c
}

func TestNewCodecValidatesConfig(t *testing.T) {
	if _, err := NewCodec(Config{Secret: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	if _, err := NewCodec(Config{Secret: testSecret, Method: "rs256"}); err == nil {
		t.Fatal("expected non-HMAC method to be rejected")
	}
	for _, m := range []SigningMethod{"", MethodHS256, MethodHS384, MethodHS512, "HS512"} {
		if _, err := NewCodec(Config{Secret: testSecret, Method: m}); err != nil {
			t.Fatalf("method %q: %v", m, err)
		}
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := newTestCodec(t, nil)

	payloads := []Payload{
		{UserID: "42", UserRole: "manager", ExpiresAt: time.Now().Add(time.Hour).Truncate(time.Second)},
		{UserID: "u-7", UserRole: "", ExpiresAt: time.Now().Add(2 * time.Minute).Truncate(time.Second)},
		{UserID: "1", UserRole: "staff", ExpiresAt: time.Now().Add(24 * time.Hour).Truncate(time.Second)},
	}

	for _, p := range payloads {
		token, err := c.Encrypt(p)
		if err != nil {
			t.Fatalf("encrypt %+v: %v", p, err)
		}
		res := c.Decrypt(token)
		got, ok := res.Payload()
		if !ok {
			t.Fatalf("expected valid token, reason=%s cause=%v", res.Reason(), res.Cause())
		}
		if got.UserID != p.UserID || got.UserRole != p.UserRole || !got.ExpiresAt.Equal(p.ExpiresAt) {
			t.Fatalf("round trip mismatch: want %+v got %+v", p, got)
		}
		if res.Reason() != ReasonNone {
			t.Fatalf("valid token must carry no reason, got %q", res.Reason())
		}
	}
}

func TestDecryptRejectsExpiredPayload(t *testing.T) {
	c := newTestCodec(t, nil)

	for _, ago := range []time.Duration{time.Second, time.Minute, 48 * time.Hour} {
		token, err := c.Encrypt(Payload{UserID: "42", UserRole: "staff", ExpiresAt: time.Now().Add(-ago)})
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		res := c.Decrypt(token)
		if res.OK() {
			t.Fatalf("expected token expired %s ago to be rejected", ago)
		}
		if res.Reason() != ReasonExpired {
			t.Fatalf("expected expired reason, got %q", res.Reason())
		}
	}
}

func TestDecryptHonoursInjectedClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := newTestCodec(t, func() time.Time { return now })

	token, err := c.Encrypt(Payload{UserID: "9", ExpiresAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !c.Decrypt(token).OK() {
		t.Fatal("expected token to be valid before expiry")
	}

	now = now.Add(time.Hour + time.Second)
	if c.Decrypt(token).OK() {
		t.Fatal("expected token to be invalid after expiry")
	}
}

func TestDecryptRejectsEverySingleBitMutation(t *testing.T) {
	c := newTestCodec(t, nil)
	token, err := c.Encrypt(Payload{UserID: "42", UserRole: "manager", ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	raw := []byte(token)
	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			mutated := make([]byte, len(raw))
			copy(mutated, raw)
			mutated[i] ^= 1 << bit
			if c.Decrypt(string(mutated)).OK() {
				t.Fatalf("mutation at byte %d bit %d was accepted", i, bit)
			}
		}
	}
}

func TestDecryptFoldsAllFailuresIntoInvalid(t *testing.T) {
	c := newTestCodec(t, nil)
	other, err := NewCodec(Config{Secret: []byte("ffffffffffffffffffffffffffffffff")})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	foreign, err := other.Encrypt(Payload{UserID: "42", ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	noneTok, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, gjwt.MapClaims{
		"uid": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	noExp, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{"uid": "42"}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token without exp: %v", err)
	}

	noUID, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, gjwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token without uid: %v", err)
	}

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not-a-token",
		"two segments":  "a.b",
		"foreign key":   foreign,
		"alg none":      noneTok,
		"missing exp":   noExp,
		"missing uid":   noUID,
		"trailing junk": foreign + "x",
	}
	for name, tok := range cases {
		res := c.Decrypt(tok)
		if res.OK() {
			t.Fatalf("%s: expected invalid result", name)
		}
		if _, ok := res.Payload(); ok {
			t.Fatalf("%s: invalid result must not expose a payload", name)
		}
		if res.Reason() == ReasonNone {
			t.Fatalf("%s: invalid result must carry a reason", name)
		}
	}

	if got := c.Decrypt("").Reason(); got != ReasonMissing {
		t.Fatalf("expected missing reason for empty token, got %q", got)
	}
	if got := c.Decrypt(foreign).Reason(); got != ReasonSignature {
		t.Fatalf("expected signature reason for foreign token, got %q", got)
	}
}

func TestEncryptRejectsIncompletePayload(t *testing.T) {
	c := newTestCodec(t, nil)
	if _, err := c.Encrypt(Payload{ExpiresAt: time.Now().Add(time.Hour)}); err == nil {
		t.Fatal("expected missing user id to be rejected")
	}
	if _, err := c.Encrypt(Payload{UserID: "1"}); err == nil {
		t.Fatal("expected missing expiry to be rejected")
	}
}

func TestIssuerIsEnforced(t *testing.T) {
	a, err := NewCodec(Config{Secret: testSecret, Issuer: "branch-ops"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	b, err := NewCodec(Config{Secret: testSecret, Issuer: "other"})
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}

	token, err := b.Encrypt(Payload{UserID: "1", ExpiresAt: time.Now().Add(time.Hour)})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a.Decrypt(token).OK() {
		t.Fatal("expected issuer mismatch to be rejected")
	}
	if !strings.Contains(token, ".") {
		t.Fatal("expected compact JWS form")
	}
}
