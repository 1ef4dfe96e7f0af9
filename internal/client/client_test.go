package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/persona-script-go/internal/session"
	"github.com/kapu/persona-script-go/pkg/errors"
)

func newFakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sessions/known", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(session.State{ID: "known", Revision: 3})
	})
	mux.HandleFunc("/api/sessions/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"session \"missing\" not found","code":"NOT_FOUND"}}`))
	})
	mux.HandleFunc("/api/sessions/known/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="my_show_script.json"`)
		w.Write([]byte(`{"script":[]}`))
	})
	mux.HandleFunc("/api/sessions/known/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for rev := int64(1); rev <= 2; rev++ {
			conn.WriteJSON(session.Event{Type: session.EventState, State: session.State{ID: "known", Revision: rev}})
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetSessionAndErrors(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL+"/", zap.NewNop())

	st, err := c.GetSession(context.Background(), "known")
	if err != nil || st.ID != "known" || st.Revision != 3 {
		t.Fatalf("unexpected result %+v %v", st, err)
	}

	_, err = c.GetSession(context.Background(), "missing")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if errors.UserMessage(err) != `session "missing" not found` {
		t.Fatalf("unexpected message %q", errors.UserMessage(err))
	}
}

func TestExportFilename(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, zap.NewNop())

	body, name, err := c.Export(context.Background(), "known")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if name != "my_show_script.json" || string(body) != `{"script":[]}` {
		t.Fatalf("unexpected export %q %q", name, body)
	}
}

func TestEventsURL(t *testing.T) {
	c := NewClient("https://example.com", zap.NewNop())
	if got := c.EventsURL("abc"); got != "wss://example.com/api/sessions/abc/events" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestEventStreamDeliversEvents(t *testing.T) {
	srv := newFakeServer(t)
	c := NewClient(srv.URL, zap.NewNop())

	stream := NewEventStream(c.EventsURL("known"), 0, 10*time.Millisecond, zap.NewNop())

	var mu sync.Mutex
	var revisions []int64
	got := make(chan struct{})
	stream.OnEvent(func(ev session.Event) {
		mu.Lock()
		defer mu.Unlock()
		revisions = append(revisions, ev.State.Revision)
		if len(revisions) == 2 {
			close(got)
		}
	})

	if err := stream.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Disconnect()

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for events")
	}

	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("stream should stop after the server closes it")
	}

	mu.Lock()
	defer mu.Unlock()
	if revisions[0] != 1 || revisions[1] != 2 {
		t.Fatalf("unexpected revisions %v", revisions)
	}
}

func TestEventStreamFailsWithoutReconnectBudget(t *testing.T) {
	stream := NewEventStream("ws://127.0.0.1:1/events", 0, time.Millisecond, zap.NewNop())

	var states []StreamState
	stream.OnStateChange(func(s StreamState) { states = append(states, s) })

	if err := stream.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
	if stream.State() != StreamFailed {
		t.Fatalf("expected FAILED, got %s", stream.State())
	}
	select {
	case <-stream.Done():
	default:
		t.Fatalf("exhausted stream should be done")
	}
	if len(states) == 0 || states[0] != StreamConnecting || !strings.EqualFold(states[len(states)-1].String(), "failed") {
		t.Fatalf("unexpected transitions %v", states)
	}
}
