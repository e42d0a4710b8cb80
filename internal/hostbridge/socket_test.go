package hostbridge

import (
	"context"
	"encoding/json"
	"testing"
)

func TestSocketHandlerRegistration(t *testing.T) {
	s := newCDPSocket("http://example.com")

	var calls []string
	off := s.on("Runtime.bindingCalled", func(sessionID string, _ json.RawMessage) {
		calls = append(calls, sessionID)
	})

	s.dispatch("Runtime.bindingCalled", "sess-1", nil)
	s.dispatch("Target.detachedFromTarget", "sess-2", nil)
	if len(calls) != 1 || calls[0] != "sess-1" {
		t.Fatalf("calls = %v; want [sess-1]", calls)
	}

	off()
	s.dispatch("Runtime.bindingCalled", "sess-3", nil)
	if len(calls) != 1 {
		t.Fatalf("calls after unregister = %v; want unchanged", calls)
	}
}

func TestCmdFrameOmitsEmptySession(t *testing.T) {
	data, err := json.Marshal(cmdFrame{ID: 1, Method: "Target.attachToTarget"})
	if err != nil {
		t.Fatalf("marshal = %v; want nil", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal = %v; want nil", err)
	}
	if _, ok := m["sessionId"]; ok {
		t.Fatalf("browser-level frame carries sessionId: %s", data)
	}

	data, _ = json.Marshal(cmdFrame{ID: 2, Method: "Runtime.evaluate", SessionID: "sess-1"})
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal = %v; want nil", err)
	}
	if m["sessionId"] != "sess-1" {
		t.Fatalf("session frame sessionId = %v; want sess-1", m["sessionId"])
	}
}

func TestCommandRequiresConnection(t *testing.T) {
	s := newCDPSocket("http://example.com")
	if _, err := s.command(context.Background(), "", "Target.getTargets", nil); err == nil {
		t.Fatal("command() = nil without a connection; want error")
	}
}
