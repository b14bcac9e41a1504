package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEvents_PushesLibraryInvalidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.hub.count.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	before := time.Now().UnixMilli()
	rec := env.do(t, http.MethodPost, "/api/library/rescan", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rescan status = %d", rec.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if ev.Type != EventLibraryInvalidated || ev.Timestamp < before {
		t.Errorf("event = %+v", ev)
	}
}

func TestEventHub_PublishWithoutClientsIsNoop(t *testing.T) {
	hub := NewEventHub()
	go hub.Run()
	defer hub.Close()
	for i := 0; i < 100; i++ {
		hub.Publish(EventLibraryInvalidated)
	}
}

func TestEventHub_PublishRightAfterRegister(t *testing.T) {
	hub := NewEventHub()
	go hub.Run()
	defer hub.Close()

	for i := 0; i < 50; i++ {
		client := &eventClient{hub: hub, send: make(chan []byte, 1)}
		hub.register <- client
		hub.Publish(EventLibraryInvalidated)

		select {
		case msg := <-client.send:
			var ev Event
			if err := json.Unmarshal(msg, &ev); err != nil || ev.Type != EventLibraryInvalidated {
				t.Fatalf("event = %s, err %v", msg, err)
			}
		case <-time.After(time.Second):
			hub.unregister <- client
			t.Fatalf("iteration %d: event published after register was dropped", i)
		}
		hub.unregister <- client
	}
}
