// Package downloads tracks in-flight torrents across queue snapshots and
// reports the ones that finish.
package downloads

import (
	"errors"
	"strings"
	"sync"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/plexmon/plexmon/internal/metrics"
)

// ErrNotFound is returned when no download matches a name fragment.
var ErrNotFound = errors.New("download not found")

// Item is one entry of a queue snapshot.
type Item struct {
	ID       string
	Name     string
	Progress float64
	Size     int64
	State    string
	SavePath string
}

// FromTorrent converts the WebUI representation.
func FromTorrent(t qbt.Torrent) Item {
	return Item{
		ID:       t.Hash,
		Name:     t.Name,
		Progress: t.Progress,
		Size:     t.Size,
		State:    string(t.State),
		SavePath: t.SavePath,
	}
}

// FromTorrents converts a whole snapshot.
func FromTorrents(torrents []qbt.Torrent) []Item {
	items := make([]Item, 0, len(torrents))
	for _, t := range torrents {
		items = append(items, FromTorrent(t))
	}
	return items
}

// Complete reports whether the item has fully downloaded.
func (i Item) Complete() bool {
	return i.Progress >= 1
}

// Paused reports whether the item is in a paused or stopped state. Newer
// servers say "stopped" where older ones said "paused".
func (i Item) Paused() bool {
	switch qbt.TorrentState(i.State) {
	case qbt.TorrentStatePausedDl, qbt.TorrentStatePausedUp, "stoppedDL", "stoppedUP":
		return true
	}
	return false
}

// Completion is emitted once per item that finished while tracked.
type Completion struct {
	ID       string
	Name     string
	Size     int64
	SavePath string
}

// Reconciler holds the active set: ids observed incomplete and unpaused,
// mapped to their last-known name.
type Reconciler struct {
	mu     sync.Mutex
	active map[string]string
}

// NewReconciler returns an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{active: make(map[string]string)}
}

// Reconcile applies one snapshot. Items already complete when first seen
// are never tracked, so they never produce a completion.
func (r *Reconciler) Reconcile(snapshot []Item) []Completion {
	r.mu.Lock()
	defer r.mu.Unlock()

	var done []Completion
	for _, item := range snapshot {
		_, tracked := r.active[item.ID]
		switch {
		case tracked && item.Complete():
			done = append(done, Completion{
				ID:       item.ID,
				Name:     item.Name,
				Size:     item.Size,
				SavePath: item.SavePath,
			})
			delete(r.active, item.ID)
			metrics.RecordDownloadCompletion()
		case !item.Complete() && !item.Paused():
			r.active[item.ID] = item.Name
		}
	}
	metrics.SetActiveDownloads(len(r.active))
	return done
}

// Tracking reports whether id is in the active set.
func (r *Reconciler) Tracking(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Len returns the size of the active set.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// FindByName returns the first item whose name contains fragment, ignoring
// case. There is no disambiguation: first match wins.
func FindByName(items []Item, fragment string) (Item, error) {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return Item{}, ErrNotFound
	}
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), needle) {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}
