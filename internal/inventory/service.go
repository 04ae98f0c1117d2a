package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pantrypal/pantry-tracker/internal/capture"
	"github.com/pantrypal/pantry-tracker/internal/vision"
)

// IDGenerator generates unique IDs for sessions and records.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// ErrSessionNotFound is returned for unknown or discarded sessions.
var ErrSessionNotFound = errors.New("scan session not found")

// ErrCommitFailed wraps persistence failures during commit. The write
// is a single bulk operation, so the error is aggregate: the whole
// batch failed, there is no partial state to roll back.
var ErrCommitFailed = errors.New("committing items failed")

// Service runs the capture-to-commit pipeline: normalize the image,
// classify and extract through the analyzer, hold the review session,
// and bulk-commit the reviewed items.
type Service struct {
	db         DB
	analyzer   vision.Analyzer
	storage    Storage
	idGen      IDGenerator
	timeSource TimeSource
	captureOpts capture.Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewService creates a Service with default ID generator and time source.
func NewService(db DB, analyzer vision.Analyzer, storage Storage, opts capture.Options) *Service {
	return NewServiceWithDeps(db, analyzer, storage, opts, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(db DB, analyzer vision.Analyzer, storage Storage, opts capture.Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		analyzer:    analyzer,
		storage:     storage,
		idGen:       idGen,
		timeSource:  timeSrc,
		captureOpts: opts,
		sessions:    make(map[string]*Session),
	}
}

// StartScan normalizes the incoming image, stores it for the review
// screen, and kicks off the two-phase analysis. Source "frame" means a
// live camera frame (single fixed-quality encode); anything else goes
// through the gallery path with downscaling and the compression budget.
func (s *Service) StartScan(raw []byte, contentType, source string) (*Session, error) {
	var img *capture.Image
	var err error
	if source == "frame" {
		img, err = capture.FromFrame(raw)
	} else {
		img, err = capture.FromUpload(raw, contentType, s.captureOpts)
	}
	if err != nil {
		return nil, err
	}

	id := s.idGen.Generate()
	path, err := s.storage.Save(id+".jpg", img.Data)
	if err != nil {
		return nil, fmt.Errorf("saving capture: %w", err)
	}

	sess := NewSession(id, path, s.timeSource.Now())
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	if err := sess.BeginAnalysis(); err != nil {
		return nil, err
	}
	go s.analyze(sess, img)

	return sess, nil
}

// GetSession looks up an active session.
func (s *Service) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// GetSessionImage returns the stored capture for display.
func (s *Service) GetSessionImage(id string) ([]byte, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	return s.storage.Get(sess.ImagePath)
}

// Retry re-runs the analysis on the already-captured image without a
// new capture. Rejected while a request is in flight.
func (s *Service) Retry(id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if err := sess.RetryAllowed(); err != nil {
		return err
	}

	data, err := s.storage.Get(sess.ImagePath)
	if err != nil {
		return fmt.Errorf("reloading capture: %w", err)
	}
	img := &capture.Image{Data: data}

	if err := sess.BeginAnalysis(); err != nil {
		return err
	}
	go s.analyze(sess, img)
	return nil
}

// Retake discards the session and its stored capture.
func (s *Service) Retake(id string) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}
	if err := sess.Retake(); err != nil {
		return err
	}

	if err := s.storage.Delete(sess.ImagePath); err != nil {
		slog.Warn("Failed to delete capture", "path", sess.ImagePath, "error", err)
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *Service) analyze(sess *Session, img *capture.Image) {
	result, err := vision.Analyze(context.Background(), s.analyzer, img)
	if err != nil {
		slog.Error("Image analysis failed",
			"session", sess.ID,
			"image_kb", img.SizeKB(),
			"error", err,
		)
		sess.FailAnalysis("", failureMessage(err))
		return
	}

	if result.Kind == vision.KindUnknown {
		slog.Warn("Image not identified", "session", sess.ID, "reason", result.UnknownReason)
		sess.FailAnalysis(vision.KindUnknown, "Could not identify the image as a receipt or product: "+result.UnknownReason)
		return
	}

	sess.CompleteAnalysis(result)
}

// failureMessage maps the error taxonomy to a user-facing message with
// the matching remedy. The raw model text behind parse failures is
// logged, never shown raw but never discarded either.
func failureMessage(err error) string {
	var unparseable *vision.UnparseableError
	var invalid *vision.ValidationError
	switch {
	case errors.Is(err, vision.ErrTimeout):
		return "The analysis took too long to respond. Please retry."
	case errors.Is(err, vision.ErrRateLimited):
		return "Rate limit exceeded. Please wait a moment and retry."
	case errors.Is(err, vision.ErrAuthConfig):
		return "The vision API key is missing or invalid. Please check the server configuration."
	case errors.Is(err, vision.ErrBadRequest):
		return "The image was rejected. It may be too large or corrupt; please retake the photo."
	case errors.As(err, &unparseable):
		slog.Error("Unparseable model response", "raw", unparseable.Raw)
		return "Could not read the analysis result. Please retry or retake the photo."
	case errors.As(err, &invalid):
		slog.Error("Invalid model response", "field", invalid.Field, "raw", invalid.Raw)
		return "The analysis result was incomplete. Please retry or retake the photo."
	case errors.Is(err, vision.ErrNetworkUnreachable):
		return "Could not reach the vision service. Please check your connection and retry."
	}
	return "Analysis failed. Please retry or retake the photo."
}

// Commit bulk-inserts the reviewed items. Items missing a location or
// expiry date get them from category inference. An empty working set
// commits successfully with count 0. Returns the number inserted.
func (s *Service) Commit(id string, addToShoppingList bool) (int, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return 0, err
	}
	if err := sess.BeginCommit(); err != nil {
		return 0, err
	}

	items := sess.Items()
	kind := sess.Kind()

	records := make([]*Item, 0, len(items))
	now := s.timeSource.Now()
	inputMethod := "receipt_scan"
	if kind == vision.KindProduct {
		inputMethod = "product_scan"
	}

	for _, item := range items {
		expiry := EstimateExpiry(item.Category, now)
		if item.Expiry != "" {
			if parsed, perr := time.Parse("2006-01-02", item.Expiry); perr == nil {
				expiry = parsed
			}
		}
		records = append(records, &Item{
			ID:           s.idGen.Generate(),
			Name:         item.Name,
			Quantity:     item.Quantity,
			Category:     item.Category,
			Location:     LocationFor(item.Category),
			PurchaseDate: now,
			ExpiryDate:   expiry,
			Price:        int(math.Round(item.Price * 100)),
			InputMethod:  inputMethod,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	if len(records) > 0 {
		if err := s.db.SaveItems(records); err != nil {
			sess.FinishCommit(false)
			return 0, fmt.Errorf("%w: %v", ErrCommitFailed, err)
		}
	}
	sess.FinishCommit(true)

	if addToShoppingList && len(items) > 0 {
		shopping := make([]*ShoppingItem, 0, len(items))
		for _, item := range items {
			shopping = append(shopping, &ShoppingItem{
				ID:        s.idGen.Generate(),
				Name:      item.Name,
				Quantity:  item.Quantity,
				Category:  item.Category,
				Priority:  "normal",
				Reason:    "manual",
				CreatedAt: now,
			})
		}
		if err := s.db.AppendShoppingItems(shopping); err != nil {
			// The inventory write already succeeded; the list add is a
			// convenience, so log and keep the commit.
			slog.Warn("Failed to append shopping list items", "session", id, "error", err)
		}
	}

	if err := s.storage.Delete(sess.ImagePath); err != nil {
		slog.Warn("Failed to delete capture", "path", sess.ImagePath, "error", err)
	}
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	return len(records), nil
}

// CommitOne commits a single-product session. It is the same write
// path as Commit but verifies the session holds exactly one item.
func (s *Service) CommitOne(id string) (int, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return 0, err
	}
	if n := len(sess.Items()); n != 1 {
		return 0, fmt.Errorf("expected exactly one item, session has %d", n)
	}
	return s.Commit(id, false)
}

// ListItems returns all inventory items.
func (s *Service) ListItems() ([]*Item, error) {
	items, err := s.db.ListItems()
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	return items, nil
}

// DeleteItem removes an inventory item.
func (s *Service) DeleteItem(id string) error {
	if err := s.db.DeleteItem(id); err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	return nil
}

// ListShoppingItems returns the shopping list.
func (s *Service) ListShoppingItems() ([]*ShoppingItem, error) {
	items, err := s.db.ListShoppingItems()
	if err != nil {
		return nil, fmt.Errorf("listing shopping items: %w", err)
	}
	return items, nil
}

// AddShoppingItems appends entries to the shopping list, merging by
// name into uncompleted entries.
func (s *Service) AddShoppingItems(entries []*ShoppingItem) error {
	now := s.timeSource.Now()
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = s.idGen.Generate()
		}
		if entry.Quantity < 1 {
			entry.Quantity = 1
		}
		if entry.Reason == "" {
			entry.Reason = "manual"
		}
		if entry.Priority == "" {
			entry.Priority = priorityFor(entry.Reason)
		}
		entry.CreatedAt = now
	}
	if err := s.db.AppendShoppingItems(entries); err != nil {
		return fmt.Errorf("appending shopping items: %w", err)
	}
	return nil
}

func priorityFor(reason string) string {
	if reason == "expiring" || reason == "expired" {
		return "urgent"
	}
	return "normal"
}

// Close releases the analyzer and database.
func (s *Service) Close() error {
	if err := s.analyzer.Close(); err != nil {
		return err
	}
	return s.db.Close()
}
