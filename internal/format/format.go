// Package format renders sizes, durations and download state for chat
// messages.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// InfiniteETA is the value qBittorrent reports for an unknown ETA.
const InfiniteETA = 8640000

// NameLimit is the display width for torrent names in lists.
const NameLimit = 35

var printer = message.NewPrinter(language.English)

// Bytes renders n with IEC units: "0 B", "512 B", "1.5 KiB".
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// Rate renders a per-second transfer rate.
func Rate(bytesPerSec int64) string {
	return Bytes(bytesPerSec) + "/s"
}

// Count renders an integer with thousands separators.
func Count(n int) string {
	return printer.Sprintf("%d", n)
}

// Duration renders d as "2h 30m", "5m 3s" or "45s". Negative durations
// render as "∞".
func Duration(d time.Duration) string {
	if d < 0 {
		return "∞"
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	switch {
	case hours >= 24:
		return fmt.Sprintf("%dd %dh", hours/24, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// ETA renders a qBittorrent ETA in seconds.
func ETA(seconds int64) string {
	if seconds < 0 || seconds >= InfiniteETA {
		return "∞"
	}
	return Duration(time.Duration(seconds) * time.Second)
}

// Clock renders uptime the way the health endpoint reports it: "1h 2m 3s".
func Clock(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%dh %dm %ds", total/3600, (total%3600)/60, total%60)
}

// ProgressBar renders percent (0-100) as a ten-cell bar.
func ProgressBar(percent int) string {
	const length = 10
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := (percent*length + 50) / 100
	return strings.Repeat("█", filled) + strings.Repeat("░", length-filled)
}

// Truncate shortens s to limit runes, appending "...".
func Truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}

var stateEmoji = map[string]string{
	"downloading":        "⬇️",
	"uploading":          "⬆️",
	"stalledDL":          "⏳",
	"stalledUP":          "📤",
	"pausedDL":           "⏸️",
	"pausedUP":           "⏸️",
	"stoppedDL":          "⏸️",
	"stoppedUP":          "⏸️",
	"queuedDL":           "📋",
	"queuedUP":           "📋",
	"checkingDL":         "🔍",
	"checkingUP":         "🔍",
	"checkingResumeData": "🔍",
	"moving":             "📦",
	"error":              "❌",
	"missingFiles":       "⚠️",
	"allocating":         "📝",
	"metaDL":             "🔎",
	"forcedDL":           "⏬",
	"forcedUP":           "⏫",
}

// StateEmoji maps a torrent state to its list icon.
func StateEmoji(state string) string {
	if e, ok := stateEmoji[state]; ok {
		return e
	}
	return "❓"
}

// SectionEmoji maps a library section type to its icon.
func SectionEmoji(kind string) string {
	switch kind {
	case "movie":
		return "🎬"
	case "show":
		return "📺"
	case "artist":
		return "🎵"
	case "photo":
		return "📷"
	default:
		return "📁"
	}
}

// Episode renders season and episode numbers as S01E02.
func Episode(season, episode int) string {
	return fmt.Sprintf("S%02dE%02d", season, episode)
}
