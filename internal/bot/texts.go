package bot

import "fmt"

const unauthorizedText = "🚫 *Unauthorized*\n\nYou are not authorized to use this bot.\nContact the administrator to get access."

const (
	sessionExpiredText  = "❌ Session expired. Please try again."
	addCancelledText    = "❌ Download cancelled."
	deleteCancelledText = "❌ Deletion cancelled."
	notFoundText        = "❌ Torrent not found."
)

const (
	torrentUsageText = "📥 *Add Torrent*\n\nUsage: `/torrent <magnet_link>`\nor `/dl <magnet_link>`\n\nYou can also use:\n• `/movie <magnet>` - Download as movie\n• `/series <magnet>` - Download as series"
	invalidLinkText  = "❌ *Invalid Link*\n\nPlease provide a valid magnet link starting with `magnet:`"
	movieUsageText   = "🎬 *Add Movie*\n\nUsage: `/movie <magnet_link>`"
	seriesUsageText  = "📺 *Add Series*\n\nUsage: `/series <magnet_link>`"
	deleteUsageText  = "🗑️ *Delete Torrent*\n\nUsage: `/delete <torrent_name>`\n\n_Use /downloads to see torrent names_"
	searchUsageText  = "🔍 *Search Library*\n\nUsage: `/search <movie or show name>`"
)

func startText(chatID, userID int64) string {
	return fmt.Sprintf(`🎬 *Welcome to MyPlexMonitor!*

I'm your personal Plex server assistant. Here's what I can do:

📡 *Monitoring*
• Real-time server status monitoring
• Automatic alerts when server goes down/up

🎬 *Plex Features*
• View recently added movies and shows
• Browse your library statistics
• Get server information

📥 *Download Management*
• Add torrents directly via magnet links
• Track download progress
• Get notified when downloads complete

Type /help to see all available commands!

_Your Chat ID: `+"`%d`"+`_
_Your User ID: `+"`%d`"+`_`, chatID, userID)
}

func helpText(moviesPath, seriesPath string) string {
	return fmt.Sprintf(`📚 *MyPlexMonitor Commands*

📡 *Monitoring*
├ /check - Check Plex server status
├ /server - Show server system info
└ /stats - Library statistics

🎬 *Plex Library*
├ /recent [n] - Recently added (n items)
└ /search <query> - Search library

📥 *Downloads (qBittorrent)*
├ /torrent <magnet> - Add torrent (interactive)
├ /movie <magnet> - Add as movie
├ /series <magnet> - Add as series
├ /downloads - View active downloads
├ /pause [name] - Pause all/one
├ /resume [name] - Resume all/one
└ /delete <name> - Delete torrent

ℹ️ *Other*
├ /start - Welcome message
└ /help - This help message

📂 *Download Paths*
├ Movies: `+"`%s`"+`
└ Series: `+"`%s`", moviesPath, seriesPath)
}
