// Package telegram is a minimal Telegram Bot API client plus the two ways
// of receiving updates: long polling and a webhook handler.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/retry"
)

// ParseModeMarkdown is the legacy Markdown mode used for all formatted text.
const ParseModeMarkdown = "Markdown"

var allowedUpdates = []string{"message", "callback_query"}

// RequestError is a failed Bot API call.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	RetryAfter  time.Duration
}

func (e *RequestError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("telegram %s: http %d: %s", e.Method, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("telegram %s: http %d", e.Method, e.StatusCode)
}

// IsConflict reports a 409: another poller or an active webhook holds the
// update stream.
func IsConflict(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusConflict
}

func isParseError(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	desc := strings.ToLower(reqErr.Description)
	return strings.Contains(desc, "can't parse entities") || strings.Contains(desc, "can't parse entity")
}

// Client calls the Bot API.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	retry   retry.Config
}

// Config holds client configuration.
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	// Retry applies to rate-limited (429) calls only.
	Retry retry.Config
}

// New creates a client.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		retry:   cfg.Retry,
	}
}

// SendOptions tune an outgoing message.
type SendOptions struct {
	ParseMode string
	Keyboard  *InlineKeyboardMarkup
}

// SendMessage posts text to chatID and returns the new message id. Text the
// server cannot parse as Markdown is resent as plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error) {
	req := sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             opts.ParseMode,
		DisableWebPagePreview: true,
		ReplyMarkup:           opts.Keyboard,
	}
	msg, err := call[Message](ctx, c, "sendMessage", req)
	if err != nil && req.ParseMode != "" && isParseError(err) {
		logging.Warn("markdown rejected, resending as plain text", logging.Err(err))
		req.ParseMode = ""
		msg, err = call[Message](ctx, c, "sendMessage", req)
	}
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditMessageText replaces the text of an existing message, dropping its
// inline keyboard.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string) error {
	req := editMessageTextRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: parseMode,
	}
	_, err := call[json.RawMessage](ctx, c, "editMessageText", req)
	if err != nil && parseMode != "" && isParseError(err) {
		req.ParseMode = ""
		_, err = call[json.RawMessage](ctx, c, "editMessageText", req)
	}
	return err
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, id string) error {
	_, err := call[bool](ctx, c, "answerCallbackQuery", answerCallbackQueryRequest{CallbackQueryID: id})
	return err
}

// SetWebhook registers webhookURL; Telegram echoes secret in the
// X-Telegram-Bot-Api-Secret-Token header of each delivery.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	_, err := call[bool](ctx, c, "setWebhook", setWebhookRequest{
		URL:            webhookURL,
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	})
	return err
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := call[bool](ctx, c, "deleteWebhook", deleteWebhookRequest{})
	return err
}

// GetUpdates long-polls for updates from offset and returns the next offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	updates, err := c.do(reqCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: allowedUpdates,
	})
	if err != nil {
		return nil, offset, err
	}

	var out []Update
	if err := json.Unmarshal(updates, &out); err != nil {
		return nil, offset, fmt.Errorf("telegram getUpdates: decode: %w", err)
	}

	next := offset
	for _, u := range out {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out, next, nil
}

// call performs method with retries on 429 and decodes the result.
func call[T any](ctx context.Context, c *Client, method string, payload any) (T, error) {
	return retry.DoWithResult(ctx, c.retry, func() (T, error) {
		var result T
		raw, err := c.do(ctx, method, payload)
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusTooManyRequests {
				return result, retry.RetryableAfter(err, reqErr.RetryAfter)
			}
			return result, err
		}
		if err := json.Unmarshal(raw, &result); err != nil {
			return result, fmt.Errorf("telegram %s: decode: %w", method, err)
		}
		return result, nil
	})
}

// do posts payload and returns the raw result field.
func (c *Client) do(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// The URL embeds the token; keep it out of error text.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var out apiResponse[json.RawMessage]
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		reqErr := &RequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   out.ErrorCode,
			Description: strings.TrimSpace(out.Description),
		}
		if reqErr.Description == "" {
			reqErr.Description = strings.TrimSpace(string(raw))
		}
		if out.Parameters != nil && out.Parameters.RetryAfter > 0 {
			reqErr.RetryAfter = time.Duration(out.Parameters.RetryAfter) * time.Second
		}
		return nil, reqErr
	}
	return out.Result, nil
}
