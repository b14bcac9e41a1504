package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a password with a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Verifier 校验登录密码
type Verifier struct {
	hash string
}

// NewVerifier 优先使用 hash，为空时对明文密码做一次哈希，每次比较都走 bcrypt
func NewVerifier(password, hash string) (*Verifier, error) {
	if hash != "" {
		return &Verifier{hash: hash}, nil
	}
	if password == "" {
		return &Verifier{}, nil
	}
	h, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &Verifier{hash: h}, nil
}

// Enabled 是否配置了密码
func (v *Verifier) Enabled() bool {
	return v.hash != ""
}

// Check 密码是否正确
func (v *Verifier) Check(password string) bool {
	if v.hash == "" {
		return false
	}
	return CheckPasswordHash(password, v.hash)
}
