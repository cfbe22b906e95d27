package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plexmon/plexmon/internal/format"
	"github.com/plexmon/plexmon/internal/plex"
)

const (
	defaultRecent = 10
	maxRecent     = 20
	maxSearch     = 10
)

func (r *Router) handleStart(ctx context.Context, req request) error {
	r.reply(ctx, req.chatID, startText(req.chatID, req.userID))
	return nil
}

func (r *Router) handleHelp(ctx context.Context, req request) error {
	r.reply(ctx, req.chatID, helpText(r.cfg.MoviesPath, r.cfg.SeriesPath))
	return nil
}

// handleCheck runs a probe outside the schedule. The result goes through
// the monitor, so a state change here alerts like a scheduled one.
func (r *Router) handleCheck(ctx context.Context, req request) error {
	r.replyPlain(ctx, req.chatID, "🔎 Checking server status...")

	res := r.monitor.CheckNow(ctx)
	if res.Reachable {
		r.reply(ctx, req.chatID, fmt.Sprintf("🟢 *Server Status: ONLINE*\n\n📡 Server: `%s`\n⏰ Last check: %s",
			r.cfg.PlexAddr, r.now().Format(time.DateTime)))
		return nil
	}
	r.reply(ctx, req.chatID, fmt.Sprintf("🔴 *Server Status: OFFLINE*\n\n📡 Server: `%s`\n❌ Reason: %s",
		r.cfg.PlexAddr, res.Description()))
	return nil
}

func (r *Router) handleServer(ctx context.Context, req request) error {
	st := r.monitor.Status()
	host := r.hostInfo()

	plexState := "Offline"
	if st.Online {
		plexState = "Online"
	}
	qbIcon, qbState := "🔴", "Disconnected"
	if st.SessionValid {
		qbIcon, qbState = "🟢", "Connected"
	}

	var b strings.Builder
	b.WriteString("🖥️ *Server Information*\n\n")
	fmt.Fprintf(&b, "📡 *Plex Server:* `%s`\n🟢 Status: %s\n\n", r.cfg.PlexAddr, plexState)
	fmt.Fprintf(&b, "📥 *qBittorrent:* `%s`\n%s Status: %s\n\n", r.cfg.QBittorrentAddr, qbIcon, qbState)

	if host.Available {
		pct := host.MemoryPercent()
		b.WriteString("💾 *Memory Usage*\n")
		fmt.Fprintf(&b, "├ Used: %s / %s\n", format.Bytes(int64(host.UsedMemory())), format.Bytes(int64(host.TotalMemory)))
		fmt.Fprintf(&b, "├ Free: %s\n", format.Bytes(int64(host.FreeMemory)))
		fmt.Fprintf(&b, "└ Usage: %s %d%%\n\n", format.ProgressBar(pct), pct)
		fmt.Fprintf(&b, "⚙️ *CPU*\n├ Cores: %d\n└ Load: %.2f\n\n", host.CPUs, host.Load1)
	} else {
		fmt.Fprintf(&b, "⚙️ *CPU*\n└ Cores: %d\n\n", host.CPUs)
	}

	fmt.Fprintf(&b, "⏱️ *Bot Uptime:* %s\n", format.Duration(st.Uptime))
	if host.Available {
		fmt.Fprintf(&b, "🖥️ *System Uptime:* %s", format.Duration(host.Uptime))
	}

	r.reply(ctx, req.chatID, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (r *Router) handleStats(ctx context.Context, req request) error {
	r.replyPlain(ctx, req.chatID, "📊 Gathering library statistics...")

	sections, err := r.library.Sections(ctx)
	if err != nil {
		r.reply(ctx, req.chatID, "🔴 *Error*\n\nFailed to retrieve library statistics.")
		return fmt.Errorf("list sections: %w", err)
	}

	var b strings.Builder
	b.WriteString("📊 *Plex Library Statistics*\n\n")
	for _, s := range sections {
		count, err := r.library.SectionSize(ctx, s.Key)
		if err != nil {
			r.reply(ctx, req.chatID, "🔴 *Error*\n\nFailed to retrieve library statistics.")
			return fmt.Errorf("size of section %s: %w", s.Key, err)
		}
		fmt.Fprintf(&b, "%s *%s*: %s items\n", format.SectionEmoji(s.Type), s.Title, format.Count(count))
	}

	st := r.monitor.Status()
	b.WriteString("\n🤖 *Bot Statistics*\n")
	fmt.Fprintf(&b, "├ Uptime: %s\n", format.Duration(st.Uptime))
	fmt.Fprintf(&b, "├ Checks: %d\n", st.Stats.ChecksPerformed)
	fmt.Fprintf(&b, "├ Alerts: %d\n", st.Stats.AlertsSent)
	fmt.Fprintf(&b, "└ Torrents added: %d", st.Stats.TorrentsAdded)

	r.reply(ctx, req.chatID, b.String())
	return nil
}

// recentLimit reads the optional count. Anything that is not a positive
// integer means the default.
func recentLimit(arg string) int {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		return defaultRecent
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return defaultRecent
	}
	return min(n, maxRecent)
}

func (r *Router) handleRecent(ctx context.Context, req request) error {
	r.replyPlain(ctx, req.chatID, "🔎 Retrieving recently added items...")

	items, err := r.library.RecentlyAdded(ctx)
	if err != nil {
		r.reply(ctx, req.chatID, "🔴 *Error*\n\nFailed to retrieve recently added items.\nCheck your PLEX_TOKEN and server connection.")
		return fmt.Errorf("recently added: %w", err)
	}
	if len(items) == 0 {
		r.replyPlain(ctx, req.chatID, "📭 No recently added items found.")
		return nil
	}

	shown := items[:min(recentLimit(req.arg), len(items))]
	var b strings.Builder
	fmt.Fprintf(&b, "🆕 *Recently Added* (%d/%d):\n\n", len(shown), len(items))
	for i, item := range shown {
		fmt.Fprintf(&b, "%d. %s\n", i+1, recentLine(item))
	}
	b.WriteString("\n_Use /recent <number> to see more items_")

	r.reply(ctx, req.chatID, b.String())
	return nil
}

func recentLine(item plex.Item) string {
	switch item.Type {
	case "movie":
		return fmt.Sprintf("🎬 *%s* (%s)%s", item.Title, year(item.Year), rating(item.Rating))
	case "episode":
		return fmt.Sprintf("📺 *%s* - %s\n   └─ _%s_", item.GrandparentTitle, format.Episode(item.ParentIndex, item.Index), item.Title)
	case "season":
		return fmt.Sprintf("📺 *%s* - %s", item.ParentTitle, item.Title)
	default:
		return fmt.Sprintf("✨ *%s*", item.Title)
	}
}

func (r *Router) handleSearch(ctx context.Context, req request) error {
	if req.arg == "" {
		r.reply(ctx, req.chatID, searchUsageText)
		return nil
	}
	r.replyPlain(ctx, req.chatID, fmt.Sprintf("🔍 Searching for \"%s\"...", req.arg))

	items, err := r.library.Search(ctx, req.arg)
	if err != nil {
		r.replyPlain(ctx, req.chatID, "❌ Error searching library.")
		return fmt.Errorf("search: %w", err)
	}
	if len(items) == 0 {
		r.replyPlain(ctx, req.chatID, fmt.Sprintf("📭 No results found for \"%s\".", req.arg))
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 *Search Results for \"%s\":*\n\n", req.arg)
	for _, item := range items[:min(maxSearch, len(items))] {
		if line, ok := searchLine(item); ok {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	if len(items) > maxSearch {
		fmt.Fprintf(&b, "\n_...and %d more results_", len(items)-maxSearch)
	}

	r.reply(ctx, req.chatID, b.String())
	return nil
}

// searchLine renders movies, shows and episodes. Other result types are
// skipped.
func searchLine(item plex.Item) (string, bool) {
	switch item.Type {
	case "movie":
		return fmt.Sprintf("🎬 *%s* (%s)%s", item.Title, year(item.Year), rating(item.Rating)), true
	case "show":
		return fmt.Sprintf("📺 *%s* (%s)", item.Title, year(item.Year)), true
	case "episode":
		return fmt.Sprintf("📺 *%s* - %s: %s", item.GrandparentTitle, format.Episode(item.ParentIndex, item.Index), item.Title), true
	}
	return "", false
}

func year(y int) string {
	if y == 0 {
		return "N/A"
	}
	return strconv.Itoa(y)
}

func rating(r float64) string {
	if r == 0 {
		return ""
	}
	return fmt.Sprintf(" ⭐ %.1f", r)
}
