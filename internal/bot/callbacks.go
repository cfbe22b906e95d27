package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/plexmon/plexmon/internal/conversation"
	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/metrics"
	"github.com/plexmon/plexmon/internal/telegram"
)

// handleCallback resolves an inline-button press against the caller's
// pending session and carries out the outcome.
func (r *Router) handleCallback(ctx context.Context, q *telegram.CallbackQuery) {
	if err := r.messenger.AnswerCallbackQuery(ctx, q.ID); err != nil {
		logging.WithContext(ctx).Debug("answer callback failed", zap.Error(err))
	}
	if q.Message == nil {
		return
	}
	chatID, messageID := q.Message.Chat.ID, q.Message.MessageID
	log := logging.WithContext(ctx).With(
		zap.String("selection", q.Data),
		zap.Int64("user_id", q.From.ID))

	if !r.isAuthorized(q.From.ID) {
		log.Warn("unauthorized callback")
		metrics.RecordCommand("callback", "unauthorized")
		r.reply(ctx, chatID, unauthorizedText)
		return
	}

	out, err := r.machine.Resolve(q.From.ID, conversation.Selection(q.Data))
	if errors.Is(err, conversation.ErrSessionExpired) {
		log.Info("selection without pending session")
		metrics.RecordCommand("callback", "expired")
		r.edit(ctx, chatID, messageID, sessionExpiredText, "")
		return
	}

	result := "ok"
	switch out.Action {
	case conversation.ActionCancelAdd:
		r.edit(ctx, chatID, messageID, addCancelledText, "")
	case conversation.ActionCancelDelete:
		r.edit(ctx, chatID, messageID, deleteCancelledText, "")
	case conversation.ActionAdd:
		r.edit(ctx, chatID, messageID, fmt.Sprintf("⏳ Adding %s to download queue...", out.Category), "")
		if err := r.addDownload(ctx, chatID, out.Magnet, out.Category); err != nil {
			log.Warn("add from selection failed", zap.Error(err))
			result = "error"
		}
	case conversation.ActionDelete:
		if err := r.downloads.Delete(ctx, out.ID, out.DeleteFiles); err != nil {
			log.Warn("delete failed", zap.String("hash", out.ID), zap.Error(err))
			r.edit(ctx, chatID, messageID, "❌ Error: "+userError(err), "")
			result = "error"
			break
		}
		text := fmt.Sprintf("🗑️ Deleted: *%s*", out.Name)
		if out.DeleteFiles {
			text = fmt.Sprintf("🔥 Deleted with files: *%s*", out.Name)
		}
		log.Info("download deleted", zap.String("name", out.Name), zap.Bool("delete_files", out.DeleteFiles))
		r.edit(ctx, chatID, messageID, text, telegram.ParseModeMarkdown)
	}
	metrics.RecordCommand("callback", result)
}
