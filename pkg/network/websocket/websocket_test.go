package websocket

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/vaibhav210603/QRcade/pkg/logger"
)

func TestEcho(t *testing.T) {
	log := logger.Default()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := NewServer(w, r, log)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ws.OnMessage = func(message []byte) { ws.Write(message) }
		ws.Listen()
	}))
	defer srv.Close()

	addr, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	client, err := NewClient(url.URL{Scheme: "ws", Host: addr.Host}, log)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	got := make(chan []byte, 1)
	client.OnMessage = func(message []byte) { got <- message }
	go client.Listen()

	client.Write([]byte(`{"t":1}`))
	select {
	case m := <-got:
		if string(m) != `{"t":1}` {
			t.Errorf("bad echo: %q", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no echo received")
	}
}

func TestWriteAfterClose(t *testing.T) {
	log := logger.Default()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := NewServer(w, r, log)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ws.Listen()
	}))
	defer srv.Close()

	addr, _ := url.Parse(srv.URL)
	client, err := NewClient(url.URL{Scheme: "ws", Host: addr.Host}, log)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	go client.Listen()
	client.Close()
	client.Close()

	// writes after close are dropped, not deadlocked
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			client.Write([]byte("late"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("write after close blocked")
	}
}
