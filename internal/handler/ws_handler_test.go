package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/response"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

// dialActions serves dispatch over a real socket for the learner of the
// test server. The event relay is not started, so no Redis is needed.
func dialActions(t *testing.T, s *testServer) *websocket.Conn {
	t.Helper()
	h := NewWSHandler(nil, s.sessions, zerolog.Nop(), nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := ws.NewConn(raw)
		defer conn.Close()
		for {
			var msg json.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			h.dispatch(r.Context(), conn, "exam-1", "learner-1", msg)
		}
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type wsReply struct {
	Event     ws.Event `json:"event"`
	RequestID string   `json:"request_id"`
	Code      string   `json:"code"`
	Snapshot  *struct {
		AnsweredCount int `json:"answered_count"`
	} `json:"snapshot"`
}

func roundTrip(t *testing.T, c *websocket.Conn, req map[string]any) wsReply {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := c.WriteJSON(req); err != nil {
		t.Fatalf("write %v: %v", req, err)
	}
	var reply wsReply
	if err := c.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply to %v: %v", req, err)
	}
	return reply
}

func TestWSDispatch_FollowsReplacedSession(t *testing.T) {
	s := newTestServer(t)
	if code, env := s.call(t, http.MethodPost, sessionPath, ""); code != http.StatusOK {
		t.Fatalf("open status = %d, error = %+v", code, env.Error)
	}
	if code, env := s.call(t, http.MethodPost, sessionPath+"/start", ""); code != http.StatusOK {
		t.Fatalf("start status = %d, error = %+v", code, env.Error)
	}
	first, err := s.sessions.Get("exam-1", "learner-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	c := dialActions(t, s)

	reply := roundTrip(t, c, map[string]any{"action": "answer", "request_id": "r1", "question_id": "q1", "value": "a"})
	if reply.Event != ws.EventAck || reply.RequestID != "r1" {
		t.Fatalf("answer reply = %+v, want ack r1", reply)
	}

	if code, env := s.call(t, http.MethodDelete, sessionPath, ""); code != http.StatusOK {
		t.Fatalf("abandon status = %d, error = %+v", code, env.Error)
	}

	reply = roundTrip(t, c, map[string]any{"action": "next", "request_id": "r2"})
	if reply.Event != ws.EventError || reply.Code != string(response.ErrSessionNotFound) {
		t.Fatalf("next after abandon = %+v, want %s error", reply, response.ErrSessionNotFound)
	}

	if code, env := s.call(t, http.MethodPost, sessionPath, ""); code != http.StatusOK {
		t.Fatalf("reopen status = %d, error = %+v", code, env.Error)
	}
	if code, env := s.call(t, http.MethodPost, sessionPath+"/start", ""); code != http.StatusOK {
		t.Fatalf("restart status = %d, error = %+v", code, env.Error)
	}

	reply = roundTrip(t, c, map[string]any{"action": "answer", "request_id": "r3", "question_id": "q2", "value": "because"})
	if reply.Event != ws.EventAck || reply.Snapshot == nil || reply.Snapshot.AnsweredCount != 1 {
		t.Fatalf("answer on reopened session = %+v, want ack with one answer", reply)
	}

	second, err := s.sessions.Get("exam-1", "learner-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if second == first {
		t.Fatal("reopen should have replaced the session")
	}
	if got := second.Snapshot().AnsweredCount; got != 1 {
		t.Errorf("reopened session answers = %d, want 1", got)
	}
	if got := first.Snapshot().AnsweredCount; got != 1 {
		t.Errorf("abandoned session answers = %d, want 1 (untouched)", got)
	}
}

func TestWSDispatch_PingNeedsNoSession(t *testing.T) {
	s := newTestServer(t)
	c := dialActions(t, s)

	reply := roundTrip(t, c, map[string]any{"action": "ping"})
	if reply.Event != ws.EventPong {
		t.Fatalf("ping reply = %+v, want pong", reply)
	}
	reply = roundTrip(t, c, map[string]any{"action": "snapshot", "request_id": "r1"})
	if reply.Event != ws.EventError || reply.Code != string(response.ErrSessionNotFound) {
		t.Fatalf("snapshot without session = %+v, want %s error", reply, response.ErrSessionNotFound)
	}
}
