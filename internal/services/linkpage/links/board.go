package links

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"

	apperrors "github.com/louisbranch/linkpage/internal/platform/errors"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/fetch"
)

var (
	// ErrCommitInFlight is returned by Commit while an earlier commit is unresolved.
	ErrCommitInFlight = errors.New("reorder commit in flight")
	// ErrUnknownLink is returned for an id missing from the shown collection.
	ErrUnknownLink = errors.New("link not in collection")
)

// Mutations are the server operations a Board issues.
type Mutations interface {
	Create(ctx context.Context, in api.CreateLinkInput) (api.Link, error)
	Update(ctx context.Context, id string, in api.UpdateLinkInput) (api.Link, error)
	Delete(ctx context.Context, id string) error
	Reorder(ctx context.Context, items []api.ReorderItem) ([]api.Link, error)
	Toggle(ctx context.Context, id string) (api.Link, error)
}

// BoardOption configures a Board.
type BoardOption func(*Board)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) BoardOption {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithCatalog sets the catalog used for fallback messages.
func WithCatalog(catalog *i18n.Catalog) BoardOption {
	return func(b *Board) {
		if catalog != nil {
			b.catalog = catalog
		}
	}
}

// Board shows the confirmed link collection with unconfirmed local edits
// layered on top. A local copy exists from the first optimistic edit until
// the server confirms it or it is rolled back.
type Board struct {
	source    *fetch.Resource[[]api.Link]
	mutations Mutations
	logger    *zap.Logger
	catalog   *i18n.Catalog

	mu         sync.Mutex
	local      []api.Link
	hasLocal   bool
	edits      uint64
	dragIndex  int
	reordering bool
	err        string
}

// NewBoard builds a board over source, the resource holding the confirmed
// collection.
func NewBoard(source *fetch.Resource[[]api.Link], mutations Mutations, opts ...BoardOption) *Board {
	b := &Board{
		source:    source,
		mutations: mutations,
		logger:    zap.NewNop(),
		catalog:   i18n.GetCatalog(i18n.BaseLocale),
		dragIndex: -1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Items returns the local copy when one exists, otherwise the confirmed
// collection.
func (b *Board) Items() []api.Link {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.itemsLocked())
}

func (b *Board) itemsLocked() []api.Link {
	if b.hasLocal {
		return b.local
	}
	return b.source.State().Data
}

// Dirty reports whether unconfirmed local edits are shown.
func (b *Board) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasLocal
}

// Err returns the message of the last failed mutation.
func (b *Board) Err() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Reordering reports whether a reorder commit is unresolved.
func (b *Board) Reordering() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reordering
}

// Toggle flips the active flag of id locally and asks the server to do the
// same. A failure reverts to the confirmed collection. An id that is not
// shown is rejected without touching local state or the server.
func (b *Board) Toggle(ctx context.Context, id string) error {
	canonical, err := api.ValidateLinkID(id)
	if err != nil {
		err = apperrors.Wrap(apperrors.KindClient, b.catalog.Format(i18n.CodeInvalidLinkID, id), err)
		b.record(err, i18n.CodeLinkToggleFailed)
		return err
	}

	b.mu.Lock()
	items := slices.Clone(b.itemsLocked())
	idx := slices.IndexFunc(items, func(l api.Link) bool { return l.ID == canonical })
	if idx < 0 {
		err := apperrors.Wrap(apperrors.KindClient, b.catalog.Format(i18n.CodeLinkNotFound, id), ErrUnknownLink)
		b.recordLocked(err, i18n.CodeLinkToggleFailed)
		b.mu.Unlock()
		return err
	}
	items[idx].IsActive = !items[idx].IsActive
	b.setLocalLocked(items)
	edit := b.edits
	b.err = ""
	b.mu.Unlock()

	if _, err := b.mutations.Toggle(ctx, canonical); err != nil {
		b.rollback(err, i18n.CodeLinkToggleFailed)
		return err
	}
	return b.reconcile(ctx, edit)
}

// BeginDrag marks index as the item being dragged.
func (b *Board) BeginDrag(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dragIndex = index
}

// DragOver moves the dragged item to index, tracking the gesture.
func (b *Board) DragOver(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dragIndex < 0 || b.dragIndex == index {
		return
	}
	if b.moveLocked(b.dragIndex, index) {
		b.dragIndex = index
	}
}

// Move splices the local order: the item at from is removed and inserted at
// to. No request is issued.
func (b *Board) Move(from, to int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(from, to)
}

func (b *Board) moveLocked(from, to int) bool {
	items := b.itemsLocked()
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return false
	}
	if from == to {
		return true
	}
	items = slices.Clone(items)
	moved := items[from]
	items = slices.Delete(items, from, from+1)
	items = slices.Insert(items, to, moved)
	b.setLocalLocked(items)
	return true
}

// Cancel ends a drag without committing. The local order is kept.
func (b *Board) Cancel() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dragIndex = -1
}

// Commit submits the local order as one batch with each position equal to
// the item's index. Without a local order it does nothing. A failure
// discards the local order.
func (b *Board) Commit(ctx context.Context) error {
	b.mu.Lock()
	b.dragIndex = -1
	if !b.hasLocal {
		b.mu.Unlock()
		return nil
	}
	if b.reordering {
		b.mu.Unlock()
		return apperrors.Wrap(apperrors.KindClient, b.catalog.Format(i18n.CodeReorderInFlight), ErrCommitInFlight)
	}
	b.reordering = true
	items := api.ReorderItems(b.local)
	edit := b.edits
	b.err = ""
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.reordering = false
		b.mu.Unlock()
	}()

	if _, err := b.mutations.Reorder(ctx, items); err != nil {
		b.rollback(err, i18n.CodeLinkReorderFailed)
		return err
	}
	return b.reconcile(ctx, edit)
}

// Create adds a link and reloads the confirmed collection.
func (b *Board) Create(ctx context.Context, in api.CreateLinkInput) (api.Link, error) {
	b.clearErr()
	link, err := b.mutations.Create(ctx, in)
	if err != nil {
		b.record(err, i18n.CodeLinkCreateFailed)
		return api.Link{}, err
	}
	return link, b.replace(ctx)
}

// Update patches a link and reloads the confirmed collection.
func (b *Board) Update(ctx context.Context, id string, in api.UpdateLinkInput) (api.Link, error) {
	b.clearErr()
	link, err := b.mutations.Update(ctx, id, in)
	if err != nil {
		b.record(err, i18n.CodeLinkUpdateFailed)
		return api.Link{}, err
	}
	return link, b.replace(ctx)
}

// Delete removes a link and reloads the confirmed collection.
func (b *Board) Delete(ctx context.Context, id string) error {
	b.clearErr()
	if err := b.mutations.Delete(ctx, id); err != nil {
		b.record(err, i18n.CodeLinkDeleteFailed)
		return err
	}
	return b.replace(ctx)
}

func (b *Board) setLocalLocked(items []api.Link) {
	b.local = items
	b.hasLocal = true
	b.edits++
}

func (b *Board) dropLocalLocked() {
	b.local = nil
	b.hasLocal = false
	b.edits++
}

func (b *Board) clearErr() {
	b.mu.Lock()
	b.err = ""
	b.mu.Unlock()
}

// rollback discards local edits and records the failure.
func (b *Board) rollback(err error, code i18n.Code) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocalLocked()
	b.recordLocked(err, code)
}

func (b *Board) record(err error, code i18n.Code) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recordLocked(err, code)
}

func (b *Board) recordLocked(err error, code i18n.Code) {
	if apperrors.IsCanceled(err) {
		return
	}
	b.err = apperrors.UserMessage(err, b.catalog.Format(code))
	b.logger.Warn("link mutation failed", zap.String("code", code), zap.Error(err))
}

// reconcile reloads the confirmed collection after an accepted mutation and
// drops the local copy unless it was edited again meanwhile.
func (b *Board) reconcile(ctx context.Context, edit uint64) error {
	if err := b.source.Refetch(ctx); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.edits == edit {
		b.dropLocalLocked()
	}
	return nil
}

func (b *Board) replace(ctx context.Context) error {
	b.mu.Lock()
	b.dropLocalLocked()
	b.mu.Unlock()
	return b.source.Refetch(ctx)
}
