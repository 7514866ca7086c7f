package pin

import (
	"strings"
	"testing"
)

func fastConfig() HashConfig {
	return HashConfig{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
}

func TestHashAndVerify(t *testing.T) {
	h, err := NewHasher(fastConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	encoded, err := h.Hash("4821")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("4821", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify(correct) = %v, %v", ok, err)
	}
	ok, err = h.Verify("4822", encoded)
	if err != nil || ok {
		t.Fatalf("Verify(wrong) = %v, %v", ok, err)
	}
}

func TestHashIsSalted(t *testing.T) {
	h, _ := NewHasher(fastConfig())
	a, _ := h.Hash("123456")
	b, _ := h.Hash("123456")
	if a == b {
		t.Fatal("expected distinct salts")
	}
}

func TestVerifyUsesEmbeddedParameters(t *testing.T) {
	old, _ := NewHasher(fastConfig())
	encoded, err := old.Hash("0000")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	current, _ := NewHasher(DefaultHashConfig())
	ok, err := current.Verify("0000", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify across configs = %v, %v", ok, err)
	}
}

func TestCheckFormat(t *testing.T) {
	valid := []string{"0000", "1234", "12345678"}
	invalid := []string{"", "123", "123456789", "12a4", " 1234", "١٢٣٤"}
	for _, p := range valid {
		if err := CheckFormat(p); err != nil {
			t.Fatalf("CheckFormat(%q) = %v", p, err)
		}
	}
	for _, p := range invalid {
		if err := CheckFormat(p); err != ErrMalformed {
			t.Fatalf("CheckFormat(%q) = %v, want ErrMalformed", p, err)
		}
	}
}

func TestRejectsMalformedHashes(t *testing.T) {
	h, _ := NewHasher(fastConfig())
	good, _ := h.Hash("1234")
	parts := strings.Split(good, "$")

	cases := map[string]string{
		"empty":         "",
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuv",
		"argon2i":       strings.Replace(good, "argon2id", "argon2i", 1),
		"old version":   strings.Replace(good, "v=19", "v=16", 1),
		"low memory":    strings.Replace(good, "m=8192", "m=1024", 1),
		"zero time":     strings.Replace(good, "t=1", "t=0", 1),
		"extra param":   "$" + strings.Join([]string{parts[1], parts[2], parts[3] + ",x=1", parts[4], parts[5]}, "$"),
		"short salt":    "$" + strings.Join([]string{parts[1], parts[2], parts[3], "AAAA", parts[5]}, "$"),
		"bad key":       "$" + strings.Join([]string{parts[1], parts[2], parts[3], parts[4], "!!"}, "$"),
		"missing parts": "$argon2id$v=19$m=8192,t=1,p=1",
	}
	for name, encoded := range cases {
		if _, err := h.Verify("1234", encoded); err == nil {
			t.Fatalf("%s: expected parse error", name)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	bad := []HashConfig{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range bad {
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	if err := DefaultHashConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
