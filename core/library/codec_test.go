package library

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewCodec(root)
}

func rawID(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)
	paths := []string{
		"song.mp3",
		"Artist/Album/01 - Track.flac",
		"日本語/曲.ogg",
		"with spaces/and+plus&amp.m4a",
		"deep/a/b/c/d/e/f.wav",
		"..hidden/file.mp3",
	}
	for _, rel := range paths {
		abs := filepath.Join(c.Root(), rel)
		id, err := c.EncodePath(abs)
		if err != nil {
			t.Fatalf("EncodePath(%q): %v", rel, err)
		}
		if strings.ContainsAny(id, "+/=") {
			t.Errorf("id %q is not URL-safe", id)
		}
		got, err := c.Decode(id)
		if err != nil {
			t.Fatalf("Decode(%q): %v", id, err)
		}
		if got != abs {
			t.Errorf("round trip %q: got %q", abs, got)
		}
	}
}

func TestCodec_DistinctPathsDistinctIDs(t *testing.T) {
	c := newTestCodec(t)
	seen := map[string]string{}
	for _, rel := range []string{"a.mp3", "a.mp3 ", "A.mp3", "a/b.mp3", "a_b.mp3"} {
		id := c.Encode(rel)
		if prev, dup := seen[id]; dup {
			t.Fatalf("%q and %q share id %q", prev, rel, id)
		}
		seen[id] = rel
	}
}

func TestCodec_DecodeRejectsTraversal(t *testing.T) {
	c := newTestCodec(t)
	inputs := []string{
		"../../etc/passwd",
		"..",
		"../",
		"a/../../b.mp3",
		"/etc/passwd",
		"./../" + filepath.Base(c.Root()) + "x/song.mp3",
	}
	for _, in := range inputs {
		got, err := c.Decode(rawID(in))
		if !errors.Is(err, ErrForbidden) {
			t.Errorf("Decode(%q) = %q, %v; want ErrForbidden", in, got, err)
		}
	}
}

func TestCodec_DecodeAcceptsPaddedIDs(t *testing.T) {
	c := newTestCodec(t)
	id := base64.URLEncoding.EncodeToString([]byte("x.mp3"))
	got, err := c.Decode(id)
	if err != nil {
		t.Fatalf("Decode(%q): %v", id, err)
	}
	if want := filepath.Join(c.Root(), "x.mp3"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCodec_DecodeMalformed(t *testing.T) {
	c := newTestCodec(t)
	inputs := []string{
		"!!!",
		"a b",
		"abc$",
		base64.RawURLEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd}),
		rawID("nul\x00byte.mp3"),
	}
	for _, in := range inputs {
		if _, err := c.Decode(in); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestCodec_DecodeRootItself(t *testing.T) {
	c := newTestCodec(t)
	got, err := c.Decode("")
	if err != nil {
		t.Fatalf("Decode(\"\"): %v", err)
	}
	if got != c.Root() {
		t.Errorf("got %q, want root %q", got, c.Root())
	}
}

func TestCodec_DecodeRejectsSymlinkEscape(t *testing.T) {
	c := newTestCodec(t)
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.mp3")
	if err := os.WriteFile(secret, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(c.Root(), "link.mp3")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(c.Root(), "linkdir")); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"link.mp3", "linkdir/secret.mp3"} {
		if _, err := c.Decode(c.Encode(rel)); !errors.Is(err, ErrForbidden) {
			t.Errorf("Decode(%q) err = %v, want ErrForbidden", rel, err)
		}
	}
}

func TestCodec_DecodeAllowsInternalSymlink(t *testing.T) {
	c := newTestCodec(t)
	target := filepath.Join(c.Root(), "real.mp3")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(target, filepath.Join(c.Root(), "alias.mp3")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	got, err := c.Decode(c.Encode("alias.mp3"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if want := filepath.Join(c.Root(), "alias.mp3"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCodec_EncodePathOutsideRoot(t *testing.T) {
	c := newTestCodec(t)
	if _, err := c.EncodePath(filepath.Join(filepath.Dir(c.Root()), "other.mp3")); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestCodec_RootWithSiblingPrefix(t *testing.T) {
	parent := t.TempDir()
	c := NewCodec(filepath.Join(parent, "Music"))
	// "../Music2/x.mp3" shares the root's string prefix but is a sibling.
	if _, err := c.Decode(rawID("../Music2/x.mp3")); !errors.Is(err, ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}
