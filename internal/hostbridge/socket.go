package hostbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// cdpSocket is a minimal CDP transport: one browser-level WebSocket carrying
// flattened per-tab sessions, JS evaluation, and binding callbacks. chromedp's
// full session bring-up (SetAutoAttach, SetDiscoverTargets, Page.Enable,
// DOM.Enable) is deliberately avoided here: auto-attaching service workers
// destabilises some browser builds, and the crosshair path only ever needs
// Runtime and Target commands.
type cdpSocket struct {
	endpoint string // e.g. "http://127.0.0.1:9220"

	connMu sync.Mutex
	conn   net.Conn
	seq    atomic.Int64

	inflightMu sync.Mutex
	inflight   map[int64]chan json.RawMessage

	handlersMu sync.RWMutex
	handlers   map[string][]socketHandler
}

type socketHandler struct {
	id int64
	fn func(sessionID string, params json.RawMessage)
}

// cmdFrame is the outgoing wire envelope. An empty SessionID targets the
// browser itself.
type cmdFrame struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	SessionID string `json:"sessionId,omitempty"`
	Params    any    `json:"params,omitempty"`
}

// respFrame is the incoming wire envelope, covering both command responses
// (ID set) and events (Method set).
type respFrame struct {
	ID        int64           `json:"id"`
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId"`
	Params    json.RawMessage `json:"params"`
	Result    json.RawMessage `json:"result"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func newCDPSocket(endpoint string) *cdpSocket {
	return &cdpSocket{
		endpoint: strings.TrimRight(endpoint, "/"),
		inflight: make(map[int64]chan json.RawMessage),
		handlers: make(map[string][]socketHandler),
	}
}

// connect resolves the browser's WebSocket debugger URL and dials it.
func (s *cdpSocket) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return nil
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := s.fetchJSON(ctx, "/json/version", &version); err != nil {
		return fmt.Errorf("cdp socket: browser ws url: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return fmt.Errorf("cdp socket: empty webSocketDebuggerUrl")
	}

	slog.Debug("cdp socket connecting", "ws_url", version.WebSocketDebuggerURL)
	conn, _, _, err := ws.Dial(ctx, version.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("cdp socket: dial: %w", err)
	}

	s.conn = conn
	s.inflightMu.Lock()
	s.inflight = make(map[int64]chan json.RawMessage)
	s.inflightMu.Unlock()
	go s.readLoop(conn)
	return nil
}

func (s *cdpSocket) close() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// readLoop routes responses to inflight waiters and events to registered
// handlers. Handlers run on this goroutine; anything that sends a CDP command
// back must hop to another goroutine or the response will never be read.
func (s *cdpSocket) readLoop(conn net.Conn) {
	defer s.failInflight()
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			slog.Debug("cdp socket read loop exit", "error", err)
			return
		}

		var frame respFrame
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		switch {
		case frame.ID > 0:
			s.inflightMu.Lock()
			ch, ok := s.inflight[frame.ID]
			delete(s.inflight, frame.ID)
			s.inflightMu.Unlock()
			if ok {
				ch <- json.RawMessage(data)
			}
		case frame.Method != "":
			s.dispatch(frame.Method, frame.SessionID, frame.Params)
		}
	}
}

// failInflight wakes every waiter after the connection dies.
func (s *cdpSocket) failInflight() {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	for id, ch := range s.inflight {
		close(ch)
		delete(s.inflight, id)
	}
}

func (s *cdpSocket) forget(id int64) {
	s.inflightMu.Lock()
	delete(s.inflight, id)
	s.inflightMu.Unlock()
}

// command sends one CDP command and returns its decoded result field. An
// empty sessionID addresses the browser target.
func (s *cdpSocket) command(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("cdp socket: not connected")
	}

	id := s.seq.Add(1)
	data, err := json.Marshal(cmdFrame{ID: id, Method: method, SessionID: sessionID, Params: params})
	if err != nil {
		return nil, fmt.Errorf("cdp socket: marshal %s: %w", method, err)
	}

	ch := make(chan json.RawMessage, 1)
	s.inflightMu.Lock()
	s.inflight[id] = ch
	s.inflightMu.Unlock()

	s.connMu.Lock()
	err = wsutil.WriteClientText(conn, data)
	s.connMu.Unlock()
	if err != nil {
		s.forget(id)
		return nil, fmt.Errorf("cdp socket: send %s: %w", method, err)
	}

	var raw json.RawMessage
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("cdp socket: connection closed")
		}
		raw = resp
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}

	var frame respFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("cdp socket: unmarshal %s response: %w", method, err)
	}
	if frame.Error != nil {
		return nil, fmt.Errorf("cdp socket: %s: %s", method, frame.Error.Message)
	}
	return frame.Result, nil
}

// attachToTarget opens a flat session on the given page target.
func (s *cdpSocket) attachToTarget(ctx context.Context, targetID string) (string, error) {
	params := struct {
		TargetID string `json:"targetId"`
		Flatten  bool   `json:"flatten"`
	}{TargetID: targetID, Flatten: true}

	result, err := s.command(ctx, "", "Target.attachToTarget", params)
	if err != nil {
		return "", err
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("cdp socket: unmarshal attach: %w", err)
	}
	return out.SessionID, nil
}

// detachFromTarget drops a session without closing the target.
func (s *cdpSocket) detachFromTarget(ctx context.Context, sessionID string) error {
	params := struct {
		SessionID string `json:"sessionId"`
	}{SessionID: sessionID}
	_, err := s.command(ctx, "", "Target.detachFromTarget", params)
	return err
}

// evaluate runs JS on the given session and returns the string result.
func (s *cdpSocket) evaluate(ctx context.Context, sessionID, js string) (string, error) {
	params := struct {
		Expression    string `json:"expression"`
		ReturnByValue bool   `json:"returnByValue"`
		AwaitPromise  bool   `json:"awaitPromise"`
	}{Expression: js, ReturnByValue: true, AwaitPromise: true}

	result, err := s.command(ctx, sessionID, "Runtime.evaluate", params)
	if err != nil {
		return "", err
	}

	var out struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &out); err != nil {
		return "", fmt.Errorf("cdp socket: unmarshal eval: %w", err)
	}
	if out.ExceptionDetails != nil {
		return "", fmt.Errorf("cdp socket: eval exception: %s", out.ExceptionDetails.Text)
	}

	// String results arrive as JSON-encoded strings.
	var str string
	if err := json.Unmarshal(out.Result.Value, &str); err != nil {
		return string(out.Result.Value), nil
	}
	return str, nil
}

// enableRuntime turns on Runtime.bindingCalled delivery for a session.
func (s *cdpSocket) enableRuntime(ctx context.Context, sessionID string) error {
	_, err := s.command(ctx, sessionID, "Runtime.enable", nil)
	return err
}

// addBinding installs a named function callable from page JS as
// window.<name>(payload); calls surface as Runtime.bindingCalled events.
func (s *cdpSocket) addBinding(ctx context.Context, sessionID, name string) error {
	params := struct {
		Name string `json:"name"`
	}{Name: name}
	_, err := s.command(ctx, sessionID, "Runtime.addBinding", params)
	return err
}

func (s *cdpSocket) removeBinding(ctx context.Context, sessionID, name string) error {
	params := struct {
		Name string `json:"name"`
	}{Name: name}
	_, err := s.command(ctx, sessionID, "Runtime.removeBinding", params)
	return err
}

// listTargets fetches open targets via the HTTP /json/list endpoint.
func (s *cdpSocket) listTargets(ctx context.Context) ([]*target.Info, error) {
	var entries []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Title string `json:"title"`
		URL   string `json:"url"`
	}
	if err := s.fetchJSON(ctx, "/json/list", &entries); err != nil {
		return nil, err
	}

	out := make([]*target.Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, &target.Info{
			TargetID: target.ID(e.ID),
			Type:     e.Type,
			Title:    e.Title,
			URL:      e.URL,
		})
	}
	return out, nil
}

// on registers a handler for a CDP event method ("Runtime.bindingCalled",
// "Target.detachedFromTarget"). The returned function unregisters it.
func (s *cdpSocket) on(method string, fn func(sessionID string, params json.RawMessage)) func() {
	id := s.seq.Add(1)
	s.handlersMu.Lock()
	s.handlers[method] = append(s.handlers[method], socketHandler{id: id, fn: fn})
	s.handlersMu.Unlock()
	return func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		kept := s.handlers[method][:0]
		for _, h := range s.handlers[method] {
			if h.id != id {
				kept = append(kept, h)
			}
		}
		s.handlers[method] = kept
	}
}

func (s *cdpSocket) dispatch(method, sessionID string, params json.RawMessage) {
	s.handlersMu.RLock()
	handlers := make([]socketHandler, len(s.handlers[method]))
	copy(handlers, s.handlers[method])
	s.handlersMu.RUnlock()
	for _, h := range handlers {
		h.fn(sessionID, params)
	}
}

// fetchJSON GETs a path on the browser's HTTP debug endpoint and decodes the
// body.
func (s *cdpSocket) fetchJSON(ctx context.Context, path string, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.endpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cdp socket: %s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
