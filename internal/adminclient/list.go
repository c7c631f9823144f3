package adminclient

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
)

// ListView holds the cached collection of one kind. The collection is only
// ever replaced by a full reload.
type ListView struct {
	client     *Client
	descriptor workflow.Descriptor
	logger     *zap.Logger

	mu      sync.RWMutex
	items   []models.Entity
	loading bool
	err     error
	loaded  bool
}

// NewListView builds a view for kind.
func NewListView(client *Client, kind workflow.Kind, logger *zap.Logger) (*ListView, error) {
	d, ok := workflow.Describe(kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListView{client: client, descriptor: d, logger: logger.With(zap.String("kind", string(kind)))}, nil
}

// Kind returns the kind shown by the view.
func (v *ListView) Kind() workflow.Kind { return v.descriptor.Kind }

// Descriptor returns the kind's descriptor.
func (v *ListView) Descriptor() workflow.Descriptor { return v.descriptor }

// Load replaces the collection with a fresh GET. On failure the collection is
// emptied and the error is kept as the view's error state.
func (v *ListView) Load(ctx context.Context) error {
	v.mu.Lock()
	if v.loading {
		v.mu.Unlock()
		return ErrBusy
	}
	v.loading = true
	v.mu.Unlock()

	raw, err := v.client.Get(ctx, v.descriptor.ListPath())

	var items []models.Entity
	if err == nil {
		items = v.keepValid(decodeCollection(raw))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false
	v.loaded = true
	if err != nil {
		v.items = nil
		v.err = err
		return err
	}
	v.items = items
	v.err = nil
	return nil
}

func (v *ListView) keepValid(items []models.Entity) []models.Entity {
	out := make([]models.Entity, 0, len(items))
	for _, e := range items {
		if !workflow.IsValidStatus(v.descriptor.Kind, e.Status) {
			v.logger.Warn("dropping entity with unknown status", zap.Int64("id", e.ID), zap.String("status", string(e.Status)))
			continue
		}
		e.Kind = v.descriptor.Kind
		out = append(out, e)
	}
	return out
}

// Items returns the cached collection narrowed and sorted by q.
func (v *ListView) Items(q workflow.Query) []models.Entity {
	v.mu.RLock()
	items := v.items
	v.mu.RUnlock()
	if q.SubmissionType != "" {
		q.SubmissionType = workflow.NormalizeSubmissionType(v.descriptor.Kind, q.SubmissionType)
	}
	return workflow.Apply(v.descriptor, q, items)
}

// Find returns the cached entity with id.
func (v *ListView) Find(id int64) (models.Entity, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, e := range v.items {
		if e.ID == id {
			return e, true
		}
	}
	return models.Entity{}, false
}

// Loading reports whether a fetch is in flight.
func (v *ListView) Loading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

// Err returns the error of the last load, if any.
func (v *ListView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Loaded reports whether at least one load completed.
func (v *ListView) Loaded() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loaded
}
