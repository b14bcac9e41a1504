package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestVerifier(t *testing.T) {
	v, err := NewVerifier("hunter2", "")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Enabled() || !v.Check("hunter2") || v.Check("hunter3") {
		t.Error("plaintext password verifier misbehaves")
	}

	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	v, _ = NewVerifier("ignored", hash)
	if !v.Check("s3cret") || v.Check("ignored") {
		t.Error("hash should take precedence over plaintext")
	}

	v, _ = NewVerifier("", "")
	if v.Enabled() || v.Check("") {
		t.Error("empty verifier must be disabled and reject everything")
	}
}

func TestSessionManager_IssueVerify(t *testing.T) {
	m := NewSessionManager("secret", time.Hour)
	tok, err := m.Issue()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Verify(tok); err != nil {
		t.Errorf("Verify(fresh) = %v", err)
	}
}

func TestSessionManager_Rejects(t *testing.T) {
	m := NewSessionManager("secret", time.Hour)
	good, _ := m.Issue()

	expired := NewSessionManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.Issue()

	other, _ := NewSessionManager("different", time.Hour).Issue()

	wrongSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "admin",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("secret"))

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user",
	}).SignedString([]byte("secret"))

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not.a.token",
		"expired":       old,
		"wrong secret":  other,
		"wrong subject": wrongSub,
		"no expiry":     noExp,
		"tampered":      good + "x",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if err := m.Verify(tok); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify = %v, want ErrInvalidToken", err)
			}
		})
	}
}
