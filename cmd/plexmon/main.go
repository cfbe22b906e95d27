// plexmon watches a Plex server and drives a qBittorrent queue from
// Telegram.
//
// Features:
// - TCP reachability checks with down/up alerts
// - Download completion notifications
// - Telegram commands for the library and the download queue
// - Status JSON, SSE alert stream and Prometheus metrics
package main

func main() {
	Execute()
}
