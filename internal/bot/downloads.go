package bot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/plexmon/plexmon/internal/conversation"
	"github.com/plexmon/plexmon/internal/downloads"
	"github.com/plexmon/plexmon/internal/format"
	"github.com/plexmon/plexmon/internal/magnet"
	"github.com/plexmon/plexmon/internal/qbittorrent"
	"github.com/plexmon/plexmon/internal/telegram"
)

const maxListed = 10

// handleDownload serves both "/download <magnet>" and a bare "/download",
// which lists the queue like /downloads.
func (r *Router) handleDownload(ctx context.Context, req request) error {
	if req.arg == "" {
		return r.handleDownloads(ctx, req)
	}
	return r.handleTorrent(ctx, req)
}

// handleTorrent starts the interactive add flow.
func (r *Router) handleTorrent(ctx context.Context, req request) error {
	if req.arg == "" {
		r.reply(ctx, req.chatID, torrentUsageText)
		return nil
	}
	link, err := magnet.Parse(req.arg)
	if err != nil {
		r.reply(ctx, req.chatID, invalidLinkText)
		return nil
	}

	r.machine.StartAdd(req.userID, link)

	keyboard := telegram.Keyboard(
		telegram.Row(
			telegram.Button("🎬 Movie", string(conversation.SelectMovie)),
			telegram.Button("📺 Series", string(conversation.SelectSeries)),
		),
		telegram.Row(telegram.Button("❌ Cancel", string(conversation.CancelAdd))),
	)
	text := fmt.Sprintf("📥 *New Download*\n\n📁 *Name:* %s\n\nWhere should this be saved?", magnet.DisplayName(link))
	r.send(ctx, req.chatID, text, telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown, Keyboard: keyboard})
	return nil
}

func (r *Router) handleMovie(ctx context.Context, req request) error {
	return r.quickAdd(ctx, req, conversation.CategoryMovie, movieUsageText)
}

func (r *Router) handleSeries(ctx context.Context, req request) error {
	return r.quickAdd(ctx, req, conversation.CategorySeries, seriesUsageText)
}

func (r *Router) quickAdd(ctx context.Context, req request, cat conversation.Category, usage string) error {
	link, err := magnet.Parse(req.arg)
	if err != nil {
		r.reply(ctx, req.chatID, usage)
		return nil
	}
	return r.addDownload(ctx, req.chatID, link, cat)
}

func (r *Router) savePath(cat conversation.Category) string {
	if cat == conversation.CategorySeries {
		return r.cfg.SeriesPath
	}
	return r.cfg.MoviesPath
}

func categoryEmoji(cat conversation.Category) string {
	if cat == conversation.CategorySeries {
		return "📺"
	}
	return "🎬"
}

// addDownload queues link into the category's directory and reports the
// result to chatID.
func (r *Router) addDownload(ctx context.Context, chatID int64, link string, cat conversation.Category) error {
	path := r.savePath(cat)
	emoji := categoryEmoji(cat)
	r.replyPlain(ctx, chatID, fmt.Sprintf("%s Adding %s to download queue...", emoji, cat))

	if err := r.downloads.Add(ctx, link, path); err != nil {
		r.reply(ctx, chatID, fmt.Sprintf("❌ *Error*\n\nFailed to add torrent. Make sure qBittorrent is running.\n\n_Error: %s_", userError(err)))
		return fmt.Errorf("add torrent: %w", err)
	}

	name := magnet.DisplayName(link)
	r.monitor.DownloadAdded(name, path)

	label := strings.ToUpper(string(cat[:1])) + string(cat[1:])
	r.reply(ctx, chatID, fmt.Sprintf("✅ *Download Started!*\n\n%s *Type:* %s\n📁 *Name:* %s\n📂 *Path:* `%s`\n\nUse /downloads to check progress.",
		emoji, label, name, path))
	return nil
}

func (r *Router) handleDownloads(ctx context.Context, req request) error {
	r.replyPlain(ctx, req.chatID, "📥 Fetching download status...")

	torrents, err := r.downloads.List(ctx)
	if err != nil {
		r.reply(ctx, req.chatID, fmt.Sprintf("❌ *Error*\n\nFailed to get download status.\nMake sure qBittorrent is running on `%s`", r.cfg.QBittorrentAddr))
		return fmt.Errorf("list torrents: %w", err)
	}
	if len(torrents) == 0 {
		r.replyPlain(ctx, req.chatID, "📭 No active downloads.")
		return nil
	}

	// Rates are optional decoration; a failure here still shows the list.
	info, _ := r.downloads.TransferInfo(ctx)

	r.reply(ctx, req.chatID, downloadsText(torrents, info))
	return nil
}

// sortForDisplay puts unfinished torrents first, most advanced first.
func sortForDisplay(torrents []qbt.Torrent) {
	slices.SortStableFunc(torrents, func(a, b qbt.Torrent) int {
		aDone, bDone := a.Progress >= 1, b.Progress >= 1
		if aDone != bDone {
			if aDone {
				return 1
			}
			return -1
		}
		return cmp.Compare(b.Progress, a.Progress)
	})
}

func downloadsText(torrents []qbt.Torrent, info *qbt.TransferInfo) string {
	sortForDisplay(torrents)

	var b strings.Builder
	b.WriteString("📥 *Downloads*\n\n")
	if info != nil {
		fmt.Fprintf(&b, "⬇️ %s | ⬆️ %s\n\n", format.Rate(info.DlInfoSpeed), format.Rate(info.UpInfoSpeed))
	}

	for _, t := range torrents[:min(maxListed, len(torrents))] {
		pct := int(t.Progress*100 + 0.5)
		fmt.Fprintf(&b, "%s *%s*\n", format.StateEmoji(string(t.State)), format.Truncate(t.Name, format.NameLimit))
		fmt.Fprintf(&b, "%s %d%%", format.ProgressBar(pct), pct)
		if t.Progress < 1 && t.DlSpeed > 0 {
			fmt.Fprintf(&b, " | ⬇️ %s", format.Rate(t.DlSpeed))
			if t.ETA > 0 {
				fmt.Fprintf(&b, " | ⏱️ %s", format.ETA(t.ETA))
			}
		}
		b.WriteString("\n\n")
	}
	if len(torrents) > maxListed {
		fmt.Fprintf(&b, "_...and %d more torrents_", len(torrents)-maxListed)
	}
	return strings.TrimRight(b.String(), "\n")
}

// findTorrent resolves a name fragment against the current queue.
func (r *Router) findTorrent(ctx context.Context, fragment string) (qbt.Torrent, error) {
	torrents, err := r.downloads.List(ctx)
	if err != nil {
		return qbt.Torrent{}, err
	}
	item, err := downloads.FindByName(downloads.FromTorrents(torrents), fragment)
	if err != nil {
		return qbt.Torrent{}, err
	}
	for _, t := range torrents {
		if t.Hash == item.ID {
			return t, nil
		}
	}
	return qbt.Torrent{}, downloads.ErrNotFound
}

// replyActionError reports a failed lookup or download action.
func (r *Router) replyActionError(ctx context.Context, chatID int64, err error) error {
	if errors.Is(err, downloads.ErrNotFound) {
		r.replyPlain(ctx, chatID, notFoundText)
		return nil
	}
	r.replyPlain(ctx, chatID, "❌ Error: "+userError(err))
	return err
}

func (r *Router) handlePause(ctx context.Context, req request) error {
	return r.toggle(ctx, req, r.downloads.Pause, "⏸️ Paused: *%s*", "⏸️ All downloads paused.")
}

func (r *Router) handleResume(ctx context.Context, req request) error {
	return r.toggle(ctx, req, r.downloads.Resume, "▶️ Resumed: *%s*", "▶️ All downloads resumed.")
}

// toggle applies action to the named torrent, or to all of them when no
// name is given.
func (r *Router) toggle(ctx context.Context, req request, action func(context.Context, string) error, oneText, allText string) error {
	if req.arg == "" {
		if err := action(ctx, qbittorrent.AllTorrents); err != nil {
			return r.replyActionError(ctx, req.chatID, err)
		}
		r.replyPlain(ctx, req.chatID, allText)
		return nil
	}

	t, err := r.findTorrent(ctx, req.arg)
	if err != nil {
		return r.replyActionError(ctx, req.chatID, err)
	}
	if err := action(ctx, t.Hash); err != nil {
		return r.replyActionError(ctx, req.chatID, err)
	}
	r.reply(ctx, req.chatID, fmt.Sprintf(oneText, t.Name))
	return nil
}

func (r *Router) handleDelete(ctx context.Context, req request) error {
	if req.arg == "" {
		r.reply(ctx, req.chatID, deleteUsageText)
		return nil
	}
	t, err := r.findTorrent(ctx, req.arg)
	if err != nil {
		return r.replyActionError(ctx, req.chatID, err)
	}

	r.machine.StartDelete(req.userID, t.Hash, t.Name)

	keyboard := telegram.Keyboard(
		telegram.Row(
			telegram.Button("🗑️ Delete (keep files)", string(conversation.ConfirmKeepFiles)),
			telegram.Button("🔥 Delete with files", string(conversation.ConfirmDeleteFiles)),
		),
		telegram.Row(telegram.Button("❌ Cancel", string(conversation.CancelDelete))),
	)
	text := fmt.Sprintf("🗑️ *Delete Torrent?*\n\n📁 *%s*\n📦 Size: %s", t.Name, format.Bytes(t.Size))
	r.send(ctx, req.chatID, text, telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown, Keyboard: keyboard})
	return nil
}

// userError maps gateway failures to short chat text.
func userError(err error) string {
	switch {
	case errors.Is(err, qbittorrent.ErrAuthenticationFailed):
		return "Failed to authenticate with qBittorrent"
	case errors.Is(err, qbittorrent.ErrUnreachable):
		return "qBittorrent is unreachable"
	default:
		return err.Error()
	}
}
