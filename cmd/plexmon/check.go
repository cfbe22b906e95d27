package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexmon/plexmon/internal/config"
	"github.com/plexmon/plexmon/internal/plex"
	"github.com/plexmon/plexmon/internal/probe"
	"github.com/plexmon/plexmon/internal/qbittorrent"
)

func newCheckCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and test connectivity to Plex and qBittorrent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runCheck(ctx, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall time limit for the connectivity checks")
	return cmd
}

// runCheck prints the effective configuration and tries every upstream
// once. Any failure makes the command exit non-zero.
func runCheck(ctx context.Context, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(out, "❌ configuration: %v\n", err)
		return errors.New("configuration invalid")
	}

	fmt.Fprintln(out, "Configuration")
	fmt.Fprintf(out, "  Plex server:      %s\n", cfg.ProbeAddr())
	fmt.Fprintf(out, "  Plex token:       %s\n", mask(cfg.PlexToken))
	fmt.Fprintf(out, "  Telegram token:   %s\n", mask(cfg.TelegramToken))
	fmt.Fprintf(out, "  Alert chat:       %s\n", orUnset(cfg.TelegramChatID != 0, fmt.Sprint(cfg.TelegramChatID)))
	fmt.Fprintf(out, "  Webhook URL:      %s\n", orUnset(cfg.WebhookURL != "", cfg.WebhookURL))
	fmt.Fprintf(out, "  qBittorrent:      %s (user %s, password %s)\n",
		cfg.QBittorrentBaseURL(), cfg.QBittorrentUsername, mask(cfg.QBittorrentPassword))
	fmt.Fprintf(out, "  Movies path:      %s\n", cfg.MoviesPath)
	fmt.Fprintf(out, "  Series path:      %s\n", cfg.SeriesPath)
	fmt.Fprintf(out, "  Check interval:   %s (downloads %s)\n", cfg.CheckInterval, cfg.DownloadCheckInterval)
	fmt.Fprintf(out, "  Authorized users: %d\n", len(cfg.AuthorizedUsers))

	warnings := cfg.Warnings()
	for _, w := range warnings {
		fmt.Fprintf(out, "⚠️  %s\n", w)
	}

	fmt.Fprintln(out, "\nConnectivity")
	failures := 0

	res := probe.New(cfg.ProbeAddr(), probe.DefaultTimeout).Check(ctx)
	if res.Reachable {
		fmt.Fprintf(out, "✅ Plex reachable at %s (%s)\n", cfg.ProbeAddr(), res.Latency.Round(time.Millisecond))
	} else {
		fmt.Fprintf(out, "❌ Plex unreachable at %s: %s\n", cfg.ProbeAddr(), res.Description())
		failures++
	}

	if cfg.PlexToken != "" && res.Reachable {
		sections, err := plex.New(plex.Config{BaseURL: cfg.PlexBaseURL(), Token: cfg.PlexToken}).Sections(ctx)
		if err != nil {
			fmt.Fprintf(out, "❌ Plex library: %v\n", err)
			failures++
		} else {
			fmt.Fprintf(out, "✅ Plex library: %d sections\n", len(sections))
		}
	}

	gateway := qbittorrent.NewGateway(qbittorrent.Config{
		BaseURL:  cfg.QBittorrentBaseURL(),
		Username: cfg.QBittorrentUsername,
		Password: cfg.QBittorrentPassword,
	})
	if err := gateway.Login(ctx); err != nil {
		fmt.Fprintf(out, "❌ qBittorrent login: %v\n", err)
		failures++
	} else {
		fmt.Fprintf(out, "✅ qBittorrent login at %s\n", cfg.QBittorrentBaseURL())
	}

	fmt.Fprintf(out, "\n%d error(s), %d warning(s)\n", failures, len(warnings))
	if failures > 0 {
		return fmt.Errorf("%d check(s) failed", failures)
	}
	return nil
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

func orUnset(set bool, v string) string {
	if !set {
		return "(not set)"
	}
	return v
}
