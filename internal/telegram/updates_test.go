package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoller_DeliversInOrder(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":1,"message":{"message_id":1,"chat":{"id":7},"text":"/start"}},
				{"update_id":2,"message":{"message_id":2,"chat":{"id":7},"text":"/help"}}
			]}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 2)
	p := NewPoller(c, HandlerFunc(func(_ context.Context, u Update) {
		got <- u.Message.Text
	}))
	p.pollTimeout = time.Millisecond

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for _, want := range []string{"/start", "/help"} {
		select {
		case text := <-got:
			if text != want {
				t.Errorf("expected %s, got %s", want, text)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestWebhookHandler_RequiresSecret(t *testing.T) {
	received := make(chan Update, 1)
	h := WebhookHandler(context.Background(), "s3cret", HandlerFunc(func(_ context.Context, u Update) {
		received <- u
	}))

	body := `{"update_id":5,"message":{"message_id":1,"chat":{"id":7},"text":"/check"}}`

	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without secret, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set(SecretHeader, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	select {
	case u := <-received:
		if u.UpdateID != 5 || u.Message.Text != "/check" {
			t.Errorf("unexpected update %+v", u)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update not dispatched")
	}
}

func TestWebhookHandler_RejectsGarbage(t *testing.T) {
	h := WebhookHandler(context.Background(), "s3cret", HandlerFunc(func(context.Context, Update) {}))
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("not json"))
	req.Header.Set(SecretHeader, "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}
