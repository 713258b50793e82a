package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeTransport wires a transport to an in-memory peer
func pipeTransport(t *testing.T) (*Transport, *bufio.Reader, io.Writer) {
	t.Helper()

	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	tr := NewTransport(clientIn, clientOut)
	t.Cleanup(func() {
		tr.Close()
		clientIn.Close()
		serverOut.Close()
		serverIn.Close()
		clientOut.Close()
	})

	return tr, bufio.NewReader(serverIn), serverOut
}

func TestTransport_CallRoundTrip(t *testing.T) {
	tr, serverRead, serverWrite := pipeTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr.Start(ctx)

	// Fake server: read one request line, echo a result for its id
	go func() {
		line, err := serverRead.ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if json.Unmarshal(line, &req) != nil {
			return
		}
		resp, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]string{"pong": "yes"},
		})
		serverWrite.Write(append(resp, '\n'))
	}()

	var result map[string]string
	require.NoError(t, tr.Call(ctx, "ping", map[string]string{"hello": "world"}, &result))
	assert.Equal(t, "yes", result["pong"])
}

func TestTransport_CallError(t *testing.T) {
	tr, serverRead, serverWrite := pipeTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr.Start(ctx)

	go func() {
		line, err := serverRead.ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if json.Unmarshal(line, &req) != nil {
			return
		}
		resp, _ := json.Marshal(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]any{"code": -32601, "message": "method not found"},
		})
		serverWrite.Write(append(resp, '\n'))
	}()

	err := tr.Call(ctx, "nope", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
}

func TestTransport_Notification(t *testing.T) {
	tr, _, serverWrite := pipeTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan json.RawMessage, 1)
	tr.OnNotification("window/logMessage", func(_ string, params json.RawMessage) {
		received <- params
	})
	tr.Start(ctx)

	msg := `{"jsonrpc":"2.0","method":"window/logMessage","params":{"message":"hi"}}` + "\n"
	_, err := serverWrite.Write([]byte(msg))
	require.NoError(t, err)

	select {
	case params := <-received:
		assert.Contains(t, string(params), "hi")
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not dispatched")
	}
}

func TestTransport_GarbledLineIsSkipped(t *testing.T) {
	tr, _, serverWrite := pipeTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan struct{}, 1)
	tr.OnNotification("ok", func(string, json.RawMessage) {
		received <- struct{}{}
	})
	tr.Start(ctx)

	_, err := serverWrite.Write([]byte("this is not json\n{\"jsonrpc\":\"2.0\",\"method\":\"ok\"}\n"))
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop died on a garbled line")
	}
}

func TestTransport_CallAfterClose(t *testing.T) {
	tr, _, _ := pipeTransport(t)
	tr.Close()

	err := tr.Call(context.Background(), "ping", nil, nil)
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.ErrorIs(t, tr.Notify("ping", nil), ErrTransportClosed)
}

func TestTransport_CloseReleasesPendingCall(t *testing.T) {
	tr, serverRead, _ := pipeTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr.Start(ctx)

	done := make(chan error, 1)
	go func() {
		done <- tr.Call(ctx, "hang", nil, nil)
	}()

	// Wait for the request to hit the wire, then close
	_, err := serverRead.ReadBytes('\n')
	require.NoError(t, err)
	tr.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call was not released by Close")
	}
}
