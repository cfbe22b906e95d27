// Package bot routes Telegram commands and button presses to the monitor,
// the download client and the media library.
package bot

import (
	"context"
	"strings"
	"time"
	"unicode"

	qbt "github.com/autobrr/go-qbittorrent"
	"go.uber.org/zap"

	"github.com/plexmon/plexmon/internal/conversation"
	"github.com/plexmon/plexmon/internal/hostinfo"
	"github.com/plexmon/plexmon/internal/logging"
	"github.com/plexmon/plexmon/internal/metrics"
	"github.com/plexmon/plexmon/internal/monitor"
	"github.com/plexmon/plexmon/internal/plex"
	"github.com/plexmon/plexmon/internal/probe"
	"github.com/plexmon/plexmon/internal/telegram"
)

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string) error
	AnswerCallbackQuery(ctx context.Context, id string) error
}

// Downloads is the download client.
type Downloads interface {
	List(ctx context.Context) ([]qbt.Torrent, error)
	Add(ctx context.Context, uri, savePath string) error
	Pause(ctx context.Context, hash string) error
	Resume(ctx context.Context, hash string) error
	Delete(ctx context.Context, hash string, deleteFiles bool) error
	TransferInfo(ctx context.Context) (*qbt.TransferInfo, error)
}

// Library is the read-only media catalog.
type Library interface {
	Sections(ctx context.Context) ([]plex.Section, error)
	SectionSize(ctx context.Context, key string) (int, error)
	RecentlyAdded(ctx context.Context) ([]plex.Item, error)
	Search(ctx context.Context, query string) ([]plex.Item, error)
}

// Monitor is the reachability and statistics side of the service.
type Monitor interface {
	CheckNow(ctx context.Context) probe.Result
	Status() monitor.Status
	DownloadAdded(name, savePath string)
}

// Config holds what the router shows and enforces.
type Config struct {
	// AuthorizedUsers is the allow-list. Empty means everyone.
	AuthorizedUsers []int64
	MoviesPath      string
	SeriesPath      string
	// PlexAddr and QBittorrentAddr are shown in replies.
	PlexAddr        string
	QBittorrentAddr string
}

// Deps are the router's collaborators.
type Deps struct {
	Messenger    Messenger
	Downloads    Downloads
	Library      Library
	Monitor      Monitor
	Conversation *conversation.Machine
	// HostInfo defaults to hostinfo.Read.
	HostInfo func() hostinfo.Info
}

// request is one parsed command.
type request struct {
	command string
	arg     string
	chatID  int64
	userID  int64
}

type commandFunc func(ctx context.Context, req request) error

// Router implements telegram.Handler.
type Router struct {
	cfg        Config
	messenger  Messenger
	downloads  Downloads
	library    Library
	monitor    Monitor
	machine    *conversation.Machine
	hostInfo   func() hostinfo.Info
	authorized map[int64]struct{}
	commands   map[string]commandFunc
	now        func() time.Time
}

// New creates a router.
func New(cfg Config, deps Deps) *Router {
	if deps.Conversation == nil {
		deps.Conversation = conversation.NewMachine()
	}
	if deps.HostInfo == nil {
		deps.HostInfo = hostinfo.Read
	}
	r := &Router{
		cfg:        cfg,
		messenger:  deps.Messenger,
		downloads:  deps.Downloads,
		library:    deps.Library,
		monitor:    deps.Monitor,
		machine:    deps.Conversation,
		hostInfo:   deps.HostInfo,
		authorized: make(map[int64]struct{}, len(cfg.AuthorizedUsers)),
		now:        time.Now,
	}
	for _, id := range cfg.AuthorizedUsers {
		r.authorized[id] = struct{}{}
	}

	r.commands = map[string]commandFunc{
		"start":     r.handleStart,
		"help":      r.handleHelp,
		"check":     r.handleCheck,
		"server":    r.handleServer,
		"stats":     r.handleStats,
		"recent":    r.handleRecent,
		"search":    r.handleSearch,
		"torrent":   r.handleTorrent,
		"dl":        r.handleTorrent,
		"download":  r.handleDownload,
		"movie":     r.handleMovie,
		"series":    r.handleSeries,
		"downloads": r.handleDownloads,
		"pause":     r.handlePause,
		"resume":    r.handleResume,
		"delete":    r.handleDelete,
	}
	return r
}

// HandleUpdate dispatches one update. It never panics; a failing handler
// is logged and the router keeps serving.
func (r *Router) HandleUpdate(ctx context.Context, u telegram.Update) {
	ctx = logging.WithRequestID(ctx, logging.NewRequestID())
	defer func() {
		if rec := recover(); rec != nil {
			logging.WithContext(ctx).Error("update handler panicked",
				zap.Int64("update_id", u.UpdateID),
				zap.Any("panic", rec))
		}
	}()

	switch {
	case u.CallbackQuery != nil:
		r.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil && u.Message.From != nil:
		r.handleMessage(ctx, u.Message)
	}
}

func (r *Router) handleMessage(ctx context.Context, msg *telegram.Message) {
	name, arg, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	handler, ok := r.commands[name]
	if !ok {
		return
	}

	req := request{command: name, arg: arg, chatID: msg.Chat.ID, userID: msg.From.ID}
	log := logging.WithContext(ctx).With(
		zap.String("command", name),
		zap.Int64("user_id", req.userID))

	if !r.isAuthorized(req.userID) {
		log.Warn("unauthorized command")
		metrics.RecordCommand(name, "unauthorized")
		r.reply(ctx, req.chatID, unauthorizedText)
		return
	}

	start := r.now()
	if err := handler(ctx, req); err != nil {
		log.Warn("command failed", zap.Error(err), zap.Duration("duration", r.now().Sub(start)))
		metrics.RecordCommand(name, "error")
		return
	}
	log.Debug("command handled", zap.Duration("duration", r.now().Sub(start)))
	metrics.RecordCommand(name, "ok")
}

func (r *Router) isAuthorized(userID int64) bool {
	if len(r.authorized) == 0 {
		return true
	}
	_, ok := r.authorized[userID]
	return ok
}

// parseCommand splits "/name@bot arg..." into a lowercase name and the
// trimmed argument.
func parseCommand(text string) (name, arg string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// reply sends Markdown text. Delivery errors are logged.
func (r *Router) reply(ctx context.Context, chatID int64, text string) {
	r.send(ctx, chatID, text, telegram.SendOptions{ParseMode: telegram.ParseModeMarkdown})
}

// replyPlain sends text without formatting.
func (r *Router) replyPlain(ctx context.Context, chatID int64, text string) {
	r.send(ctx, chatID, text, telegram.SendOptions{})
}

func (r *Router) send(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) {
	if _, err := r.messenger.SendMessage(ctx, chatID, text, opts); err != nil {
		logging.WithContext(ctx).Error("send message failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

func (r *Router) edit(ctx context.Context, chatID, messageID int64, text, parseMode string) {
	if err := r.messenger.EditMessageText(ctx, chatID, messageID, text, parseMode); err != nil {
		logging.WithContext(ctx).Error("edit message failed",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}
