package conversation

// Selection is an inline-button choice. Its value is the callback data
// sent with the button.
type Selection string

const (
	SelectMovie        Selection = "torrent_movie"
	SelectSeries       Selection = "torrent_series"
	CancelAdd          Selection = "torrent_cancel"
	ConfirmKeepFiles   Selection = "delete_keep"
	ConfirmDeleteFiles Selection = "delete_files"
	CancelDelete       Selection = "delete_cancel"
)

func (s Selection) valid() bool {
	return s.flow() != 0
}

// flow returns the step a selection answers, or 0 if unrecognised.
func (s Selection) flow() Step {
	switch s {
	case SelectMovie, SelectSeries, CancelAdd:
		return AwaitingType
	case ConfirmKeepFiles, ConfirmDeleteFiles, CancelDelete:
		return AwaitingDeleteConfirmation
	}
	return 0
}

// Category is a download destination.
type Category string

const (
	CategoryMovie  Category = "movie"
	CategorySeries Category = "series"
)

// Action is what the caller must carry out after Resolve.
type Action int

const (
	ActionAdd Action = iota + 1
	ActionCancelAdd
	ActionDelete
	ActionCancelDelete
)

// Outcome describes the effect of an accepted selection.
type Outcome struct {
	Action Action

	// ActionAdd
	Category Category
	Magnet   string

	// ActionDelete, ActionCancelDelete
	ID          string
	Name        string
	DeleteFiles bool
}
