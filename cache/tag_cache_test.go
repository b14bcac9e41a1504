package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"LocalSpot/core/metadata"

	"github.com/go-redis/redis/v8"
)

type fakeKV struct {
	data   map[string]string
	getErr error
	setErr error
	ttls   map[string]time.Duration
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func TestTagCache_SetThenGet(t *testing.T) {
	kv := newFakeKV()
	c := &TagCache{client: kv, ttl: time.Hour}
	want := metadata.Tags{Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", Duration: 562.5, HasArtwork: true}

	c.Set(context.Background(), "tags:/m/a.mp3:1:2", want)
	got, ok := c.Get(context.Background(), "tags:/m/a.mp3:1:2")
	if !ok {
		t.Fatal("expected hit")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if kv.ttls["tags:/m/a.mp3:1:2"] != time.Hour {
		t.Errorf("ttl = %v", kv.ttls["tags:/m/a.mp3:1:2"])
	}
}

func TestTagCache_MissAndFailuresDegrade(t *testing.T) {
	kv := newFakeKV()
	c := &TagCache{client: kv, ttl: time.Hour}

	if _, ok := c.Get(context.Background(), "absent"); ok {
		t.Error("absent key reported as hit")
	}

	kv.data["corrupt"] = "{not json"
	if _, ok := c.Get(context.Background(), "corrupt"); ok {
		t.Error("corrupt entry reported as hit")
	}

	kv.getErr = errors.New("connection refused")
	kv.setErr = errors.New("connection refused")
	c.Set(context.Background(), "k", metadata.Tags{Title: "x"})
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("failed backend reported as hit")
	}
}
