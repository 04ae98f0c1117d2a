package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pantrypal/pantry-tracker/internal/vision"
)

// State is the review screen state machine position.
type State string

const (
	StateProcessing State = "processing"
	StateReview     State = "review"
	StateCommitted  State = "committed"
	StateRetaken    State = "retaken"
)

// ErrBusy means an analysis request is already in flight for the
// session; retry and commit are rejected until it finishes.
var ErrBusy = errors.New("analysis already in flight")

// ErrWrongState means the operation is not valid in the session's
// current state.
type ErrWrongState struct {
	Op    string
	State State
}

func (e *ErrWrongState) Error() string {
	return fmt.Sprintf("cannot %s in state %q", e.Op, e.State)
}

// ReviewItem is one user-editable extracted line item. Price is in
// dollars as extracted; conversion to cents happens at commit.
type ReviewItem struct {
	Name       string            `json:"name"`
	Quantity   int               `json:"quantity"`
	Price      float64           `json:"price"`
	Category   string            `json:"category"`
	Confidence vision.Confidence `json:"confidence"`
	Expiry     string            `json:"expiry,omitempty"` // YYYY-MM-DD, model-supplied
}

// ItemEdit is a partial update to a ReviewItem. Nil fields are left
// unchanged.
type ItemEdit struct {
	Name     *string  `json:"name,omitempty"`
	Category *string  `json:"category,omitempty"`
	Price    *float64 `json:"price,omitempty"`
}

// Session is the mutable working set for one capture: the extracted
// items under review, the stored capture for display, and the
// simulated progress indicator. All mutations are local; nothing
// touches persistent storage until commit.
type Session struct {
	ID        string
	ImagePath string
	CreatedAt time.Time

	mu             sync.Mutex
	state          State
	kind           vision.Kind
	items          []ReviewItem
	store          string
	date           string
	progress       int
	lastErr        string
	busy           bool
	cancelProgress context.CancelFunc
}

// NewSession creates a session in the processing state. The capture
// itself happened client-side; the server picks up at processing.
func NewSession(id, imagePath string, now time.Time) *Session {
	return &Session{
		ID:        id,
		ImagePath: imagePath,
		CreatedAt: now,
		state:     StateProcessing,
	}
}

// View is a read-only snapshot for rendering.
type View struct {
	ID       string       `json:"id"`
	State    State        `json:"state"`
	Kind     vision.Kind  `json:"kind,omitempty"`
	Progress int          `json:"progress"`
	Items    []ReviewItem `json:"items"`
	Store    string       `json:"store,omitempty"`
	Date     string       `json:"date,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]ReviewItem, len(s.items))
	copy(items, s.items)
	return View{
		ID:       s.ID,
		State:    s.state,
		Kind:     s.kind,
		Progress: s.progress,
		Items:    items,
		Store:    s.store,
		Date:     s.date,
		Error:    s.lastErr,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Items returns a copy of the working list.
func (s *Session) Items() []ReviewItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]ReviewItem, len(s.items))
	copy(items, s.items)
	return items
}

// Kind returns the classified image kind.
func (s *Session) Kind() vision.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// BeginAnalysis marks the session busy and starts the simulated
// progress ticker. The indicator advances on its own timer, capped
// below 100 until the real response arrives; it exists only to give
// feedback during an indeterminate wait. The ticker is cancelled on
// completion, failure, or retake.
func (s *Session) BeginAnalysis() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	if s.state != StateProcessing {
		return &ErrWrongState{Op: "analyze", State: s.state}
	}
	s.busy = true
	s.lastErr = ""
	s.progress = 0

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelProgress = cancel
	go s.runProgress(ctx)
	return nil
}

func (s *Session) runProgress(ctx context.Context) {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.progress < 95 {
				s.progress += 5
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) stopProgressLocked() {
	if s.cancelProgress != nil {
		s.cancelProgress()
		s.cancelProgress = nil
	}
}

// CompleteAnalysis records a successful extraction and moves to
// review. A receipt populates one item per line; a product synthesizes
// exactly one item using the model-reported count as quantity.
func (s *Session) CompleteAnalysis(result *vision.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopProgressLocked()
	s.busy = false
	s.progress = 100
	s.kind = result.Kind

	switch result.Kind {
	case vision.KindReceipt:
		s.items = make([]ReviewItem, 0, len(result.Receipt.Items))
		for _, line := range result.Receipt.Items {
			s.items = append(s.items, ReviewItem{
				Name:       line.Name,
				Quantity:   line.Quantity,
				Price:      line.Price,
				Category:   line.Category,
				Confidence: line.Confidence,
			})
		}
		s.store = result.Receipt.Store
		s.date = result.Receipt.Date
	case vision.KindProduct:
		s.items = []ReviewItem{{
			Name:       result.Product.Name,
			Quantity:   result.Product.Quantity,
			Category:   result.Product.Category,
			Confidence: result.Product.Confidence,
			Expiry:     result.Product.EstimatedExpiry,
		}}
	}
	s.state = StateReview
}

// FailAnalysis records an error and stays in processing so the user
// can pick retake or retry.
func (s *Session) FailAnalysis(kind vision.Kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopProgressLocked()
	s.busy = false
	s.kind = kind
	s.lastErr = message
}

// Retake discards the session.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCommitted {
		return &ErrWrongState{Op: "retake", State: s.state}
	}
	s.stopProgressLocked()
	s.busy = false
	s.state = StateRetaken
	s.items = nil
	return nil
}

// RetryAllowed reports whether a retry can start: processing, not in
// flight.
func (s *Session) RetryAllowed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	if s.state != StateProcessing {
		return &ErrWrongState{Op: "retry", State: s.state}
	}
	return nil
}

// EditItem replaces the named fields of one item.
func (s *Session) EditItem(index int, edit ItemEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReview {
		return &ErrWrongState{Op: "edit item", State: s.state}
	}
	if index < 0 || index >= len(s.items) {
		return fmt.Errorf("item index %d out of range", index)
	}
	if edit.Name != nil {
		s.items[index].Name = *edit.Name
	}
	if edit.Category != nil {
		s.items[index].Category = *edit.Category
	}
	if edit.Price != nil {
		price := *edit.Price
		if price < 0 {
			price = 0
		}
		s.items[index].Price = price
	}
	return nil
}

// AdjustQuantity changes one item's quantity by delta, clamped at 1.
// Decrementing never produces zero; removing an item is DeleteItem.
func (s *Session) AdjustQuantity(index, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReview {
		return &ErrWrongState{Op: "adjust quantity", State: s.state}
	}
	if index < 0 || index >= len(s.items) {
		return fmt.Errorf("item index %d out of range", index)
	}
	q := s.items[index].Quantity + delta
	if q < 1 {
		q = 1
	}
	s.items[index].Quantity = q
	return nil
}

// DeleteItem removes one item from the working set. Deleting the last
// item is allowed and leaves an empty reviewable set.
func (s *Session) DeleteItem(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReview {
		return &ErrWrongState{Op: "delete item", State: s.state}
	}
	if index < 0 || index >= len(s.items) {
		return fmt.Errorf("item index %d out of range", index)
	}
	s.items = append(s.items[:index], s.items[index+1:]...)
	return nil
}

// BeginCommit reserves the session for a commit. Only one commit can
// run, and only from review.
func (s *Session) BeginCommit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrBusy
	}
	if s.state != StateReview {
		return &ErrWrongState{Op: "commit", State: s.state}
	}
	s.busy = true
	return nil
}

// FinishCommit releases the reservation; on success the session
// reaches its terminal committed state.
func (s *Session) FinishCommit(committed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	if committed {
		s.state = StateCommitted
	}
}
