package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_InvalidatesOnNewTrack(t *testing.T) {
	lib := newTestLibrary(t, "a.mp3")
	if _, err := lib.Get(context.Background()); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(lib, 50*time.Millisecond)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	invalidated := make(chan struct{}, 4)
	defer lib.Subscribe(func() { invalidated <- struct{}{} })()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, filepath.Join(lib.Root(), "b.mp3"))

	select {
	case <-invalidated:
	case <-time.After(5 * time.Second):
		t.Fatal("library was not invalidated after a new track appeared")
	}

	snap, err := lib.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Len() != 2 {
		t.Errorf("Len = %d, want 2", snap.Len())
	}
}

func TestWatcher_IgnoresNonAudioFiles(t *testing.T) {
	lib := newTestLibrary(t, "a.mp3")
	w, err := NewWatcher(lib, 20*time.Millisecond)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	invalidated := make(chan struct{}, 4)
	defer lib.Subscribe(func() { invalidated <- struct{}{} })()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	writeFile(t, filepath.Join(lib.Root(), "notes.txt"))

	select {
	case <-invalidated:
		t.Fatal("non-audio change should not invalidate")
	case <-time.After(300 * time.Millisecond):
	}
}
