package monitor

import (
	"fmt"
	"time"

	"github.com/plexmon/plexmon/internal/downloads"
	"github.com/plexmon/plexmon/internal/format"
	"github.com/plexmon/plexmon/internal/reachability"
)

// alertText renders a transition for the chat.
func alertText(target string, ev reachability.Event) string {
	switch ev.Kind {
	case reachability.ServerDown:
		return fmt.Sprintf("🚨 *ALERT: Plex Server is OFFLINE!*\n\n📡 Server: `%s`\n❌ Reason: %s\n⏰ Time: %s",
			target, ev.Result.Description(), ev.At.Format(time.DateTime))
	default:
		downtime := "unknown"
		if ev.Downtime > 0 {
			downtime = format.Duration(ev.Downtime)
		}
		return fmt.Sprintf("✅ *Plex Server is BACK ONLINE!*\n\n📡 Server: `%s`\n⏱️ Downtime: %s",
			target, downtime)
	}
}

func completionText(c downloads.Completion) string {
	return fmt.Sprintf("✅ *Download Complete!*\n\n📁 %s\n📦 Size: %s\n📂 Location: `%s`",
		c.Name, format.Bytes(c.Size), c.SavePath)
}
