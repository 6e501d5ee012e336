package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// idleWSServer accepts connections and discards everything it reads.
func idleWSServer(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// signatureWSServer acknowledges one signatureSubscribe and then sends the
// notification produced by notify, optionally in the same write burst.
func signatureWSServer(t *testing.T, subID int64, notify func(subID int64) interface{}) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal request: %v", err)
			return
		}
		if req.Method != "signatureSubscribe" {
			t.Errorf("expected signatureSubscribe, got %s", req.Method)
		}
		if len(req.Params) == 0 || req.Params[0] != "testsig" {
			t.Errorf("unexpected params: %v", req.Params)
		}

		ack := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": subID}
		if err := c.WriteJSON(ack); err != nil {
			t.Errorf("write ack: %v", err)
			return
		}
		if notify != nil {
			if err := c.WriteJSON(notify(subID)); err != nil {
				t.Errorf("write notification: %v", err)
				return
			}
		}

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func signatureNotification(subID int64, slot uint64, execErr interface{}) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "signatureNotification",
		"params": map[string]interface{}{
			"subscription": subID,
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value":   map[string]interface{}{"err": execErr},
			},
		},
	}
}

func TestWSClient_Connect(t *testing.T) {
	client, err := NewWSClient(context.Background(), idleWSServer(t), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if client.closed.Load() {
		t.Error("client should not be closed")
	}
}

func TestWSClient_SignatureSubscribe(t *testing.T) {
	url := signatureWSServer(t, 12345, func(subID int64) interface{} {
		return signatureNotification(subID, 100, nil)
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SignatureSubscribe(ctx, "testsig")
	if err != nil {
		t.Fatalf("SignatureSubscribe: %v", err)
	}

	select {
	case notif, ok := <-ch:
		if !ok {
			t.Fatal("channel closed without notification")
		}
		if notif.Signature != "testsig" {
			t.Errorf("expected testsig, got %s", notif.Signature)
		}
		if notif.Slot != 100 {
			t.Errorf("expected slot 100, got %d", notif.Slot)
		}
		if notif.Err != nil {
			t.Errorf("expected no execution error, got %v", notif.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}

	// one-shot: the channel is closed after delivery
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel after notification")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after notification")
	}
}

func TestWSClient_SignatureSubscribe_ZeroSubscriptionID(t *testing.T) {
	url := signatureWSServer(t, 0, func(subID int64) interface{} {
		return signatureNotification(subID, 7, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}})
	})

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	ch, err := client.SignatureSubscribe(ctx, "testsig")
	if err != nil {
		t.Fatalf("SignatureSubscribe: %v", err)
	}

	select {
	case notif := <-ch:
		if notif.Err == nil {
			t.Error("expected execution error to be propagated")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
}

func TestWSClient_SubscribeTimeout(t *testing.T) {
	ctx := context.Background()
	client, err := NewWSClient(ctx, idleWSServer(t), &WSClientConfig{
		ReconnectDelay:    100 * time.Millisecond,
		MaxReconnectDelay: time.Second,
		PingInterval:      5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Second,
		SubscribeTimeout:  50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}
	defer client.Close()

	if _, err := client.SignatureSubscribe(ctx, "testsig"); err == nil {
		t.Fatal("expected subscription timeout")
	}
}

func TestWSClient_Close(t *testing.T) {
	client, err := NewWSClient(context.Background(), idleWSServer(t), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if !client.closed.Load() {
		t.Error("client should be closed")
	}

	// Double close should be safe
	if err := client.Close(); err != nil {
		t.Errorf("double Close: %v", err)
	}
}

func TestWSClient_CloseReleasesSubscribers(t *testing.T) {
	url := signatureWSServer(t, 9, nil)

	ctx := context.Background()
	client, err := NewWSClient(ctx, url, nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	ch, err := client.SignatureSubscribe(ctx, "testsig")
	if err != nil {
		t.Fatalf("SignatureSubscribe: %v", err)
	}

	client.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber not released on close")
	}
}

func TestWSClient_SubscribeAfterClose(t *testing.T) {
	ctx := context.Background()
	client, err := NewWSClient(ctx, idleWSServer(t), nil)
	if err != nil {
		t.Fatalf("NewWSClient: %v", err)
	}

	client.Close()

	if _, err := client.SignatureSubscribe(ctx, "testsig"); err == nil {
		t.Error("expected error subscribing after close")
	}
}
