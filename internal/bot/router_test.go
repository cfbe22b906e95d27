package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/plexmon/plexmon/internal/conversation"
	"github.com/plexmon/plexmon/internal/hostinfo"
	"github.com/plexmon/plexmon/internal/monitor"
	"github.com/plexmon/plexmon/internal/plex"
	"github.com/plexmon/plexmon/internal/probe"
	"github.com/plexmon/plexmon/internal/qbittorrent"
	"github.com/plexmon/plexmon/internal/telegram"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   telegram.SendOptions
}

type editedMessage struct {
	chatID, messageID int64
	text              string
}

type fakeMessenger struct {
	mu       sync.Mutex
	sent     []sentMessage
	edits    []editedMessage
	answered []string
}

func (f *fakeMessenger) SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return int64(len(f.sent)), nil
}

func (f *fakeMessenger) EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeMessenger) AnswerCallbackQuery(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeMessenger) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeMessenger) lastEdit() editedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return editedMessage{}
	}
	return f.edits[len(f.edits)-1]
}

type addCall struct {
	uri, savePath string
}

type deleteCall struct {
	hash        string
	deleteFiles bool
}

type fakeDownloads struct {
	torrents []qbt.Torrent
	listErr  error
	addErr   error
	adds     []addCall
	paused   []string
	resumed  []string
	deletes  []deleteCall
}

func (f *fakeDownloads) List(ctx context.Context) ([]qbt.Torrent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]qbt.Torrent(nil), f.torrents...), nil
}

func (f *fakeDownloads) Add(ctx context.Context, uri, savePath string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.adds = append(f.adds, addCall{uri: uri, savePath: savePath})
	return nil
}

func (f *fakeDownloads) Pause(ctx context.Context, hash string) error {
	f.paused = append(f.paused, hash)
	return nil
}

func (f *fakeDownloads) Resume(ctx context.Context, hash string) error {
	f.resumed = append(f.resumed, hash)
	return nil
}

func (f *fakeDownloads) Delete(ctx context.Context, hash string, deleteFiles bool) error {
	f.deletes = append(f.deletes, deleteCall{hash: hash, deleteFiles: deleteFiles})
	return nil
}

func (f *fakeDownloads) TransferInfo(ctx context.Context) (*qbt.TransferInfo, error) {
	return &qbt.TransferInfo{DlInfoSpeed: 2048, UpInfoSpeed: 1024}, nil
}

type fakeLibrary struct {
	sections []plex.Section
	sizes    map[string]int
	recent   []plex.Item
	results  []plex.Item
	err      error
	panics   bool
}

func (f *fakeLibrary) Sections(ctx context.Context) ([]plex.Section, error) {
	if f.panics {
		panic("library exploded")
	}
	return f.sections, f.err
}

func (f *fakeLibrary) SectionSize(ctx context.Context, key string) (int, error) {
	return f.sizes[key], f.err
}

func (f *fakeLibrary) RecentlyAdded(ctx context.Context) ([]plex.Item, error) {
	return f.recent, f.err
}

func (f *fakeLibrary) Search(ctx context.Context, query string) ([]plex.Item, error) {
	return f.results, f.err
}

type fakeMonitor struct {
	result probe.Result
	status monitor.Status
	checks int
	added  []string
}

func (f *fakeMonitor) CheckNow(ctx context.Context) probe.Result {
	f.checks++
	return f.result
}

func (f *fakeMonitor) Status() monitor.Status { return f.status }

func (f *fakeMonitor) DownloadAdded(name, savePath string) {
	f.added = append(f.added, name)
}

type fixture struct {
	router    *Router
	messenger *fakeMessenger
	downloads *fakeDownloads
	library   *fakeLibrary
	monitor   *fakeMonitor
	machine   *conversation.Machine
}

func newFixture(allowed ...int64) *fixture {
	f := &fixture{
		messenger: &fakeMessenger{},
		downloads: &fakeDownloads{},
		library:   &fakeLibrary{},
		monitor:   &fakeMonitor{result: probe.Result{Reachable: true}},
		machine:   conversation.NewMachine(),
	}
	f.router = New(Config{
		AuthorizedUsers: allowed,
		MoviesPath:      "/mnt/films",
		SeriesPath:      "/mnt/films/series",
		PlexAddr:        "10.0.0.5:32400",
		QBittorrentAddr: "10.0.0.5:8080",
	}, Deps{
		Messenger:    f.messenger,
		Downloads:    f.downloads,
		Library:      f.library,
		Monitor:      f.monitor,
		Conversation: f.machine,
		HostInfo: func() hostinfo.Info {
			return hostinfo.Info{Available: true, TotalMemory: 4 << 30, FreeMemory: 1 << 30, Load1: 0.5, Uptime: 3 * time.Hour, CPUs: 4}
		},
	})
	return f
}

func (f *fixture) command(userID int64, text string) {
	f.router.HandleUpdate(context.Background(), telegram.Update{
		Message: &telegram.Message{
			MessageID: 1,
			Chat:      telegram.Chat{ID: 100},
			From:      &telegram.User{ID: userID},
			Text:      text,
		},
	})
}

func (f *fixture) press(userID int64, data string) {
	f.router.HandleUpdate(context.Background(), telegram.Update{
		CallbackQuery: &telegram.CallbackQuery{
			ID:      "cb",
			From:    telegram.User{ID: userID},
			Message: &telegram.Message{MessageID: 55, Chat: telegram.Chat{ID: 100}},
			Data:    data,
		},
	})
}

const magnetLink = "magnet:?xt=urn:btih:abc&dn=Big+Buck+Bunny"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		name string
		arg  string
		ok   bool
	}{
		{"/check", "check", "", true},
		{"/recent 5", "recent", "5", true},
		{"/Search@plexmon_bot  the matrix ", "search", "the matrix", true},
		{"/torrent\nmagnet:?xt=1", "torrent", "magnet:?xt=1", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		name, arg, ok := parseCommand(tt.in)
		if name != tt.name || arg != tt.arg || ok != tt.ok {
			t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)", tt.in, name, arg, ok, tt.name, tt.arg, tt.ok)
		}
	}
}

func TestUnauthorizedCaller(t *testing.T) {
	f := newFixture(1)
	f.command(2, "/check")

	if f.monitor.checks != 0 {
		t.Error("handler must not run for unauthorized caller")
	}
	if got := f.messenger.last().text; got != unauthorizedText {
		t.Errorf("expected refusal, got %q", got)
	}
}

func TestEmptyAllowListIsOpen(t *testing.T) {
	f := newFixture()
	f.command(999, "/check")
	if f.monitor.checks != 1 {
		t.Errorf("expected check to run, got %d", f.monitor.checks)
	}
}

func TestCheck_ReportsOffline(t *testing.T) {
	f := newFixture()
	f.monitor.result = probe.Result{Reason: probe.ReasonTimeout}
	f.command(1, "/check")

	got := f.messenger.last().text
	if !strings.Contains(got, "OFFLINE") || !strings.Contains(got, "Timeout (No response)") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestTorrent_InvalidLink(t *testing.T) {
	f := newFixture()
	f.command(1, "/torrent http://example.com/file.torrent")

	if got := f.messenger.last().text; got != invalidLinkText {
		t.Errorf("expected invalid link reply, got %q", got)
	}
	if _, ok := f.machine.Pending(1); ok {
		t.Error("invalid input must not open a session")
	}
}

func TestTorrent_SelectMovie(t *testing.T) {
	f := newFixture()
	f.command(1, "/torrent "+magnetLink)

	prompt := f.messenger.last()
	if prompt.opts.Keyboard == nil || !strings.Contains(prompt.text, "Big Buck Bunny") {
		t.Fatalf("expected keyboard prompt with name, got %+v", prompt)
	}

	f.press(1, string(conversation.SelectMovie))

	if len(f.downloads.adds) != 1 {
		t.Fatalf("expected one add, got %d", len(f.downloads.adds))
	}
	if add := f.downloads.adds[0]; add.uri != magnetLink || add.savePath != "/mnt/films" {
		t.Errorf("unexpected add %+v", add)
	}
	if len(f.monitor.added) != 1 || f.monitor.added[0] != "Big Buck Bunny" {
		t.Errorf("expected added stat for name, got %v", f.monitor.added)
	}
	if !strings.Contains(f.messenger.last().text, "Download Started") {
		t.Errorf("expected success reply, got %q", f.messenger.last().text)
	}
	if _, ok := f.machine.Pending(1); ok {
		t.Error("session should be destroyed")
	}
	if len(f.messenger.answered) != 1 {
		t.Error("callback should be answered")
	}
}

func TestSeries_QuickAdd(t *testing.T) {
	f := newFixture()
	f.command(1, "/series "+magnetLink)

	if len(f.downloads.adds) != 1 || f.downloads.adds[0].savePath != "/mnt/films/series" {
		t.Errorf("unexpected adds %+v", f.downloads.adds)
	}
}

func TestMovie_AddFailureReported(t *testing.T) {
	f := newFixture()
	f.downloads.addErr = qbittorrent.ErrAuthenticationFailed
	f.command(1, "/movie "+magnetLink)

	if got := f.messenger.last().text; !strings.Contains(got, "Failed to authenticate") {
		t.Errorf("expected auth error text, got %q", got)
	}
	if len(f.monitor.added) != 0 {
		t.Error("failed add must not be counted")
	}
}

func TestCallback_Cancel(t *testing.T) {
	f := newFixture()
	f.command(1, "/dl "+magnetLink)
	f.press(1, string(conversation.CancelAdd))

	if got := f.messenger.lastEdit().text; got != addCancelledText {
		t.Errorf("expected cancel text, got %q", got)
	}
	if len(f.downloads.adds) != 0 {
		t.Error("cancel must not add")
	}
	if _, ok := f.machine.Pending(1); ok {
		t.Error("cancel must leave no session")
	}
}

func TestCallback_NoSessionExpired(t *testing.T) {
	f := newFixture()
	f.press(1, string(conversation.SelectSeries))

	if got := f.messenger.lastEdit().text; got != sessionExpiredText {
		t.Errorf("expected expired text, got %q", got)
	}
}

func TestCallback_WrongFlowKeepsSession(t *testing.T) {
	f := newFixture()
	f.command(1, "/torrent "+magnetLink)
	f.press(1, string(conversation.ConfirmDeleteFiles))

	if got := f.messenger.lastEdit().text; got != sessionExpiredText {
		t.Errorf("expected expired text, got %q", got)
	}
	if _, ok := f.machine.Pending(1); !ok {
		t.Error("mismatched selection must not destroy the pending session")
	}
	if len(f.downloads.deletes) != 0 {
		t.Error("no delete expected")
	}
}

func TestDelete_ConfirmWithFiles(t *testing.T) {
	f := newFixture()
	f.downloads.torrents = []qbt.Torrent{
		{Hash: "h1", Name: "Other.Show.S01", Size: 1 << 20},
		{Hash: "h2", Name: "Big.Buck.Bunny.1080p", Size: 1 << 30},
	}
	f.command(1, "/delete bunny")

	prompt := f.messenger.last()
	if prompt.opts.Keyboard == nil || !strings.Contains(prompt.text, "Big.Buck.Bunny.1080p") || !strings.Contains(prompt.text, "1.0 GiB") {
		t.Fatalf("unexpected prompt %+v", prompt)
	}

	f.press(1, string(conversation.ConfirmDeleteFiles))

	if len(f.downloads.deletes) != 1 || f.downloads.deletes[0] != (deleteCall{hash: "h2", deleteFiles: true}) {
		t.Fatalf("unexpected deletes %+v", f.downloads.deletes)
	}
	if got := f.messenger.lastEdit().text; got != "🔥 Deleted with files: *Big.Buck.Bunny.1080p*" {
		t.Errorf("unexpected edit %q", got)
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture()
	f.downloads.torrents = []qbt.Torrent{{Hash: "h1", Name: "Alpha"}}
	f.command(1, "/delete zulu")

	if got := f.messenger.last().text; got != notFoundText {
		t.Errorf("expected not found, got %q", got)
	}
	if _, ok := f.machine.Pending(1); ok {
		t.Error("not found must not open a session")
	}
}

func TestPauseResume(t *testing.T) {
	f := newFixture()
	f.downloads.torrents = []qbt.Torrent{{Hash: "h1", Name: "Alpha"}}

	f.command(1, "/pause")
	if len(f.downloads.paused) != 1 || f.downloads.paused[0] != qbittorrent.AllTorrents {
		t.Errorf("expected pause all, got %v", f.downloads.paused)
	}

	f.command(1, "/resume alp")
	if len(f.downloads.resumed) != 1 || f.downloads.resumed[0] != "h1" {
		t.Errorf("expected resume h1, got %v", f.downloads.resumed)
	}
	if got := f.messenger.last().text; got != "▶️ Resumed: *Alpha*" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestPause_GatewayError(t *testing.T) {
	f := newFixture()
	f.downloads.listErr = qbittorrent.ErrUnreachable
	f.command(1, "/pause alpha")

	if got := f.messenger.last().text; got != "❌ Error: qBittorrent is unreachable" {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestDownloadWithoutArgumentLists(t *testing.T) {
	f := newFixture()
	f.downloads.torrents = []qbt.Torrent{{Hash: "h1", Name: "Alpha", Progress: 0.5, State: qbt.TorrentStateDownloading}}
	f.command(1, "/download")

	got := f.messenger.last().text
	if !strings.HasPrefix(got, "📥 *Downloads*") || !strings.Contains(got, "Alpha") {
		t.Errorf("expected download list, got %q", got)
	}
	if _, ok := f.machine.Pending(1); ok {
		t.Error("listing must not open a session")
	}
}

func TestDownloadsText(t *testing.T) {
	torrents := []qbt.Torrent{
		{Name: "Done", Progress: 1, State: qbt.TorrentStateUploading},
		{Name: "Half", Progress: 0.5, DlSpeed: 1024, ETA: 90, State: qbt.TorrentStateDownloading},
		{Name: strings.Repeat("x", 40), Progress: 0.9, State: qbt.TorrentStatePausedDl},
	}
	got := downloadsText(torrents, &qbt.TransferInfo{DlInfoSpeed: 2048})

	if !strings.Contains(got, "⬇️ 2.0 KiB/s | ⬆️ 0 B/s") {
		t.Errorf("missing global rates in %q", got)
	}
	iLong := strings.Index(got, strings.Repeat("x", 35)+"...")
	iHalf := strings.Index(got, "Half")
	iDone := strings.Index(got, "Done")
	if iLong < 0 || iHalf < 0 || iDone < 0 || !(iLong < iHalf && iHalf < iDone) {
		t.Errorf("unexpected order or truncation:\n%s", got)
	}
	if !strings.Contains(got, "█████░░░░░ 50% | ⬇️ 1.0 KiB/s | ⏱️ 1m 30s") {
		t.Errorf("missing progress line in %q", got)
	}
}

func TestDownloadsText_Overflow(t *testing.T) {
	torrents := make([]qbt.Torrent, 12)
	for i := range torrents {
		torrents[i] = qbt.Torrent{Name: "t", Progress: 0.1}
	}
	if got := downloadsText(torrents, nil); !strings.HasSuffix(got, "_...and 2 more torrents_") {
		t.Errorf("expected overflow note, got %q", got)
	}
}

func TestRecentLimit(t *testing.T) {
	tests := []struct {
		arg  string
		want int
	}{
		{"", 10},
		{"5", 5},
		{"50", 20},
		{"0", 10},
		{"abc", 10},
	}
	for _, tt := range tests {
		if got := recentLimit(tt.arg); got != tt.want {
			t.Errorf("recentLimit(%q) = %d, want %d", tt.arg, got, tt.want)
		}
	}
}

func TestRecent(t *testing.T) {
	f := newFixture()
	f.library.recent = []plex.Item{
		{Type: "movie", Title: "Heat", Year: 1995, Rating: 8.34},
		{Type: "episode", Title: "Pilot", GrandparentTitle: "Lost", ParentIndex: 1, Index: 1},
		{Type: "season", Title: "Season 2", ParentTitle: "Dark"},
	}
	f.command(1, "/recent 2")

	got := f.messenger.last().text
	for _, want := range []string{"(2/3)", "1. 🎬 *Heat* (1995) ⭐ 8.3", "2. 📺 *Lost* - S01E01\n   └─ _Pilot_"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
	if strings.Contains(got, "Dark") {
		t.Error("limit not applied")
	}
}

func TestStats(t *testing.T) {
	f := newFixture()
	f.library.sections = []plex.Section{{Key: "1", Title: "Movies", Type: "movie"}}
	f.library.sizes = map[string]int{"1": 1234}
	f.monitor.status = monitor.Status{Stats: monitor.StatsSnapshot{ChecksPerformed: 7, AlertsSent: 2, TorrentsAdded: 3}}
	f.command(1, "/stats")

	got := f.messenger.last().text
	for _, want := range []string{"🎬 *Movies*: 1,234 items", "├ Checks: 7", "├ Alerts: 2", "└ Torrents added: 3"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestStats_PlexError(t *testing.T) {
	f := newFixture()
	f.library.err = plex.ErrNoToken
	f.command(1, "/stats")

	if got := f.messenger.last().text; !strings.Contains(got, "Failed to retrieve library statistics") {
		t.Errorf("unexpected reply %q", got)
	}
}

func TestServer(t *testing.T) {
	f := newFixture()
	f.monitor.status = monitor.Status{Online: true, SessionValid: true, Uptime: time.Hour}
	f.command(1, "/server")

	got := f.messenger.last().text
	for _, want := range []string{"Status: Online", "🟢 Status: Connected", "Used: 3.0 GiB / 4.0 GiB", "75%", "Cores: 4", "Load: 0.50", "*System Uptime:* 3h 0m"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestHandlerPanicIsContained(t *testing.T) {
	f := newFixture()
	f.library.panics = true
	f.command(1, "/stats")

	f.command(1, "/check")
	if f.monitor.checks != 1 {
		t.Error("router should keep serving after a panic")
	}
}

func TestUnknownCommandIgnored(t *testing.T) {
	f := newFixture()
	f.command(1, "/bogus")
	f.command(1, "just chatting")
	if len(f.messenger.sent) != 0 {
		t.Errorf("expected no replies, got %v", f.messenger.sent)
	}
}
