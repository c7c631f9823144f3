package adminclient

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
)

// Detail is an opened entity with the actions valid for its status and the
// comment the operator is composing.
type Detail struct {
	Entity   models.Entity
	Actions  []workflow.Action
	Comment  string
	Degraded bool
	Open     bool
}

// Terminal reports whether no action is offered.
func (d *Detail) Terminal() bool { return len(d.Actions) == 0 }

// DetailView opens entities, fetching detail fields through a bounded TTL
// cache. Detail fetch failures degrade to the row fields.
type DetailView struct {
	client *Client
	vocab  *workflow.Vocabulary
	cache  *expirable.LRU[string, models.Entity]
	logger *zap.Logger
}

// NewDetailView builds a detail view. size and ttl bound the cache.
func NewDetailView(client *Client, vocab *workflow.Vocabulary, size int, ttl time.Duration, logger *zap.Logger) *DetailView {
	if vocab == nil {
		vocab = workflow.DefaultVocabulary()
	}
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailView{
		client: client,
		vocab:  vocab,
		cache:  expirable.NewLRU[string, models.Entity](size, nil, ttl),
		logger: logger,
	}
}

func detailKey(kind workflow.Kind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// Open merges the detail endpoint's fields over row. It never fails.
func (v *DetailView) Open(ctx context.Context, row models.Entity) *Detail {
	d, ok := workflow.Describe(row.Kind)
	if !ok {
		return v.build(row, true)
	}

	key := detailKey(row.Kind, row.ID)
	if cached, ok := v.cache.Get(key); ok {
		return v.build(row.Merge(cached), false)
	}

	raw, err := v.client.Get(ctx, d.DetailPath(row.ID))
	if err != nil {
		v.logger.Warn("detail fetch failed, showing row", zap.String("kind", string(row.Kind)), zap.Int64("id", row.ID), zap.Error(err))
		return v.build(row, true)
	}
	detail, err := decodeEntity(raw)
	if err != nil {
		v.logger.Warn("detail payload unreadable, showing row", zap.String("kind", string(row.Kind)), zap.Int64("id", row.ID), zap.Error(err))
		return v.build(row, true)
	}
	if detail.Status != "" && !workflow.IsValidStatus(row.Kind, detail.Status) {
		detail.Status = ""
	}
	v.cache.Add(key, detail)
	return v.build(row.Merge(detail), false)
}

func (v *DetailView) build(entity models.Entity, degraded bool) *Detail {
	return &Detail{
		Entity:   entity,
		Actions:  v.vocab.Actions(entity.Kind, entity.Status, entity.SubmissionType),
		Degraded: degraded,
		Open:     true,
	}
}

// Invalidate drops the cached detail of one entity.
func (v *DetailView) Invalidate(kind workflow.Kind, id int64) {
	v.cache.Remove(detailKey(kind, id))
}

// Purge empties the cache.
func (v *DetailView) Purge() {
	v.cache.Purge()
}

// Cached reports whether the entity's detail is cached.
func (v *DetailView) Cached(kind workflow.Kind, id int64) bool {
	return v.cache.Contains(detailKey(kind, id))
}
