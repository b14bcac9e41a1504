package library

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Codec maps library-relative paths to URL-safe identifiers and back.
// Identifiers are unpadded base64url of the slash-separated relative path.
type Codec struct {
	root string
}

// NewCodec returns a codec sandboxed to root. root should already be absolute
// and symlink-resolved (see config.CanonicalRoot); it is cleaned here.
func NewCodec(root string) *Codec {
	return &Codec{root: filepath.Clean(root)}
}

// Root returns the library root.
func (c *Codec) Root() string {
	return c.root
}

// Encode returns the identifier for a path relative to the root.
func (c *Codec) Encode(relativePath string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(filepath.ToSlash(relativePath)))
}

// EncodePath returns the identifier for an absolute path inside the root.
func (c *Codec) EncodePath(absPath string) (string, error) {
	rel, err := filepath.Rel(c.root, absPath)
	if err != nil {
		return "", fmt.Errorf("relative path for %s: %w", absPath, err)
	}
	if rel == "." {
		rel = ""
	}
	if escapes(rel) {
		return "", fmt.Errorf("%s: %w", absPath, ErrForbidden)
	}
	return c.Encode(rel), nil
}

// Decode reverses Encode and returns the absolute path. Every result is checked
// against the root: lexical traversal, absolute overrides and symlinks that
// resolve outside the root all fail with ErrForbidden.
func (c *Codec) Decode(id string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(id, "="))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !utf8.Valid(raw) || strings.IndexByte(string(raw), 0) >= 0 {
		return "", ErrMalformed
	}

	rel := filepath.FromSlash(string(raw))
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", ErrForbidden
	}

	resolved := filepath.Join(c.root, rel)
	if !c.contains(resolved) {
		return "", ErrForbidden
	}

	// A link inside the library may still point elsewhere. Paths that don't
	// exist can't be followed; the caller's stat reports those.
	if target, err := filepath.EvalSymlinks(resolved); err == nil && !c.contains(target) {
		return "", ErrForbidden
	} else if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %v", ErrForbidden, err)
	}

	return resolved, nil
}

// Relative returns the root-relative form of an absolute path.
func (c *Codec) Relative(absPath string) string {
	rel, err := filepath.Rel(c.root, absPath)
	if err != nil {
		return absPath
	}
	return rel
}

func (c *Codec) contains(p string) bool {
	if p == c.root {
		return true
	}
	prefix := c.root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel)
}
