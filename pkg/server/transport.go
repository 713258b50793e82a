// Package server supervises the Jac language-server process bound to the
// active environment: spawn, handshake, crash detection, teardown. It owns
// transport lifecycle only; message semantics belong to the protocol layer
// above it.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrTransportClosed is returned by calls against a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// maxLineSize bounds a single JSON-RPC line from the server
const maxLineSize = 16 * 1024 * 1024

// NotificationHandler handles incoming notifications from the server.
type NotificationHandler func(method string, params json.RawMessage)

// Request is an outgoing JSON-RPC request or notification.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an incoming JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// incoming is used to sniff whether a message is a response or notification.
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Transport frames line-delimited JSON-RPC messages over the server's
// stdio pipes: one JSON object per newline-terminated line.
type Transport struct {
	reader io.Reader
	writer io.Writer

	writeMu  sync.Mutex
	mu       sync.Mutex
	nextID   atomic.Int64
	pending  map[int64]chan *Response
	handlers map[string]NotificationHandler

	closed atomic.Bool
	done   chan struct{}
}

// NewTransport creates a transport over the given pipes
func NewTransport(r io.Reader, w io.Writer) *Transport {
	return &Transport{
		reader:   r,
		writer:   w,
		pending:  make(map[int64]chan *Response),
		handlers: make(map[string]NotificationHandler),
		done:     make(chan struct{}),
	}
}

// Start begins the read loop in its own goroutine
func (t *Transport) Start(ctx context.Context) {
	go t.readLoop(ctx)
}

// OnNotification registers a handler for a notification method. Must be
// called before Start.
func (t *Transport) OnNotification(method string, handler NotificationHandler) {
	t.mu.Lock()
	t.handlers[method] = handler
	t.mu.Unlock()
}

// Close shuts the transport down. Pending callers are released via done.
func (t *Transport) Close() {
	if t.closed.Swap(true) {
		return
	}
	close(t.done)

	t.mu.Lock()
	t.pending = make(map[int64]chan *Response)
	t.mu.Unlock()
}

// Call sends a request and waits for its response
func (t *Transport) Call(ctx context.Context, method string, params, result any) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}

	id := t.nextID.Add(1)
	ch := make(chan *Response, 1)

	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
	}()

	if err := t.writeMessage(&Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ErrTransportClosed
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if result != nil && resp.Result != nil {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

// Notify sends a notification (no response expected)
func (t *Transport) Notify(method string, params any) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return t.writeMessage(&Request{JSONRPC: "2.0", Method: method, Params: params})
}

func (t *Transport) writeMessage(msg *Request) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Method, err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Method, err)
	}
	return nil
}

func (t *Transport) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil || t.closed.Load() {
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg incoming
		if err := json.Unmarshal(line, &msg); err != nil {
			// Garbled line; skip rather than kill the loop.
			continue
		}

		switch {
		case msg.ID != nil && msg.Method == "":
			t.dispatchResponse(&Response{
				JSONRPC: msg.JSONRPC,
				ID:      *msg.ID,
				Result:  msg.Result,
				Error:   msg.Error,
			})
		case msg.Method != "":
			t.dispatchNotification(msg.Method, msg.Params)
		}
	}
}

func (t *Transport) dispatchResponse(resp *Response) {
	t.mu.Lock()
	ch, ok := t.pending[resp.ID]
	t.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (t *Transport) dispatchNotification(method string, params json.RawMessage) {
	t.mu.Lock()
	handler, ok := t.handlers[method]
	t.mu.Unlock()
	if ok {
		handler(method, params)
	}
}
