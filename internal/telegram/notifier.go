package telegram

import "context"

// ChatNotifier sends Markdown alerts to one fixed chat.
type ChatNotifier struct {
	client *Client
	chatID int64
}

// NewChatNotifier binds client to chatID.
func NewChatNotifier(client *Client, chatID int64) *ChatNotifier {
	return &ChatNotifier{client: client, chatID: chatID}
}

// Notify delivers text once. Failures are returned, not retried beyond the
// client's rate-limit handling.
func (n *ChatNotifier) Notify(ctx context.Context, text string) error {
	_, err := n.client.SendMessage(ctx, n.chatID, text, SendOptions{ParseMode: ParseModeMarkdown})
	return err
}
