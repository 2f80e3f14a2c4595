package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/opkit/logger"
	"github.com/kbukum/opkit/op"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logger.Nop())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data, ok := <-c.Events():
		if !ok {
			t.Fatal("client channel closed")
		}
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestHub_PatternMatching(t *testing.T) {
	hub := startHub(t)
	all := NewClient("all", "*")
	one := NewClient("one", "inv-1")
	hub.Register(all)
	hub.Register(one)

	hub.Publish("inv-2", []byte("second"))
	hub.Publish("inv-1", []byte("first"))

	if got := string(receive(t, all)); got != "second" {
		t.Errorf("all got %q first", got)
	}
	if got := string(receive(t, all)); got != "first" {
		t.Errorf("all got %q second", got)
	}
	if got := string(receive(t, one)); got != "first" {
		t.Errorf("one got %q", got)
	}
	select {
	case data := <-one.Events():
		t.Errorf("unexpected event %q for inv-1 subscriber", data)
	default:
	}
	if hub.ClientCount() != 2 {
		t.Errorf("client count = %d", hub.ClientCount())
	}
}

func TestHub_UnregisterAndStop(t *testing.T) {
	hub := NewHub(logger.Nop())
	done := make(chan struct{})
	go func() { hub.Run(); close(done) }()

	a := NewClient("a", "*")
	b := NewClient("b", "*")
	hub.Register(a)
	hub.Register(b)

	hub.Unregister(a)
	if _, ok := <-a.Events(); ok {
		t.Error("expected unregistered client channel to be closed")
	}

	hub.Stop()
	hub.Stop()
	<-done
	if _, ok := <-b.Events(); ok {
		t.Error("expected client channel closed on stop")
	}
	if hub.Register(NewClient("late", "*")) {
		t.Error("Register should fail after Stop")
	}
	hub.Publish("x", []byte("ignored"))
}

type recorder struct {
	mu     sync.Mutex
	topics []string
	events []Event
}

func (r *recorder) Publish(topic string, data []byte) {
	var ev Event
	_ = json.Unmarshal(data, &ev)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, ev)
}

func TestPublish_Middleware(t *testing.T) {
	rec := &recorder{}
	ok := op.Use(op.Passthrough(), Publish(rec))
	failing := op.Use(op.Func("boom", func(context.Context, any) (any, error) {
		return nil, errors.New("kaput")
	}), Publish(rec))

	ctx := logger.ContextWithInvocationID(context.Background(), "inv-42")
	if _, err := op.Invoke(ctx, ok, "x"); err != nil {
		t.Fatal(err)
	}
	if _, err := op.Invoke(ctx, failing, "x"); err == nil {
		t.Fatal("expected failure")
	}

	if len(rec.events) != 4 {
		t.Fatalf("events = %+v", rec.events)
	}
	types := []string{rec.events[0].Type, rec.events[1].Type, rec.events[2].Type, rec.events[3].Type}
	want := []string{EventStarted, EventCompleted, EventStarted, EventFailed}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
	for _, topic := range rec.topics {
		if topic != "inv-42" {
			t.Errorf("topic = %q", topic)
		}
	}
	failed := rec.events[3]
	if failed.Operation != "boom" || failed.Code != "OPERATION_FAILED" || !strings.Contains(failed.Error, "kaput") {
		t.Errorf("failed event = %+v", failed)
	}
}

func TestStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startHub(t)
	engine := gin.New()
	engine.GET("/events", Stream(hub, logger.Nop()))
	srv := httptest.NewServer(engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?invocation=inv-7", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		t.Helper()
		for lines.Scan() {
			if line := lines.Text(); strings.HasPrefix(line, "data: ") {
				return strings.TrimPrefix(line, "data: ")
			}
		}
		t.Fatal("stream ended")
		return ""
	}

	if got := next(); !strings.Contains(got, `"pattern":"inv-7"`) {
		t.Errorf("connected event = %s", got)
	}

	hub.Publish("inv-other", []byte(`{"n":0}`))
	hub.Publish("inv-7", []byte(`{"n":1}`))
	if got := next(); got != `{"n":1}` {
		t.Errorf("event = %s", got)
	}
}

func TestStream_BadPattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := startHub(t)
	engine := gin.New()
	engine.GET("/events", Stream(hub, logger.Nop()))

	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events?invocation=%5B", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rr.Code)
	}
}
