package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plexmon/plexmon/internal/retry"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(Config{
		BaseURL: ts.URL,
		Token:   "123:abc",
		Retry: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     time.Millisecond,
		},
	})
}

func TestSendMessage_WithKeyboard(t *testing.T) {
	var got sendMessageRequest
	var gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":{"message_id":42,"chat":{"id":7}}}`))
	})

	kb := Keyboard(Row(Button("Movie", "torrent_movie"), Button("Series", "torrent_series")))
	id, err := c.SendMessage(context.Background(), 7, "*hello*", SendOptions{ParseMode: ParseModeMarkdown, Keyboard: kb})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != 42 {
		t.Errorf("expected message id 42, got %d", id)
	}
	if gotPath != "/bot123:abc/sendMessage" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if got.ChatID != 7 || got.ParseMode != "Markdown" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.ReplyMarkup == nil || got.ReplyMarkup.InlineKeyboard[0][1].CallbackData != "torrent_series" {
		t.Errorf("keyboard not sent: %+v", got.ReplyMarkup)
	}
}

func TestSendMessage_FallsBackToPlainText(t *testing.T) {
	var mu sync.Mutex
	var modes []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		modes = append(modes, req.ParseMode)
		mu.Unlock()
		if req.ParseMode != "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: unclosed tag"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":7}}}`))
	})

	if _, err := c.SendMessage(context.Background(), 7, "file_name_with_underscores", SendOptions{ParseMode: ParseModeMarkdown}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(modes) != 2 || modes[1] != "" {
		t.Errorf("expected markdown then plain, got %q", modes)
	}
}

func TestCall_RetriesRateLimit(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"result":true}`))
	})

	if err := c.AnswerCallbackQuery(context.Background(), "cb1"); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestCall_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	_, err := c.SendMessage(context.Background(), 7, "hi", SendOptions{})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected chat not found error, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestGetUpdates_AdvancesOffset(t *testing.T) {
	var got getUpdatesRequest
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"chat":{"id":7},"from":{"id":9},"text":"/check"}},
			{"update_id":11,"callback_query":{"id":"cb","from":{"id":9},"data":"delete_keep","message":{"message_id":2,"chat":{"id":7}}}}
		]}`))
	})

	updates, next, err := c.GetUpdates(context.Background(), 5, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if got.Offset != 5 {
		t.Errorf("expected offset 5 sent, got %d", got.Offset)
	}
	if next != 12 {
		t.Errorf("expected next offset 12, got %d", next)
	}
	if len(updates) != 2 || updates[1].CallbackQuery.Data != "delete_keep" {
		t.Errorf("unexpected updates %+v", updates)
	}
}

func TestIsConflict(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"ok":false,"error_code":409,"description":"Conflict: terminated by other getUpdates request"}`))
	})
	_, _, err := c.GetUpdates(context.Background(), 0, time.Second)
	if !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestErrorsDoNotLeakToken(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	c := New(Config{BaseURL: ts.URL, Token: "123:very-secret"})

	_, err := c.SendMessage(context.Background(), 1, "hi", SendOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "very-secret") {
		t.Errorf("token leaked into error: %v", err)
	}
}
