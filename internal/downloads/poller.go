package downloads

import (
	"context"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/plexmon/plexmon/internal/logging"
)

// Lister fetches a queue snapshot.
type Lister interface {
	List(ctx context.Context) ([]qbt.Torrent, error)
}

// Poller fetches snapshots and feeds them to a Reconciler.
type Poller struct {
	lister     Lister
	reconciler *Reconciler
}

// NewPoller creates a poller.
func NewPoller(lister Lister, reconciler *Reconciler) *Poller {
	return &Poller{lister: lister, reconciler: reconciler}
}

// Poll runs one cycle. A failed fetch counts as "no data this cycle": it is
// logged at debug level and yields no completions.
func (p *Poller) Poll(ctx context.Context) []Completion {
	torrents, err := p.lister.List(ctx)
	if err != nil {
		logging.Debug("download poll skipped", logging.Err(err))
		return nil
	}
	return p.reconciler.Reconcile(FromTorrents(torrents))
}
