package adminclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/models"
)

// RosterView caches the members of one roster. Rows leave the cache only
// after the API confirms their deletion.
type RosterView struct {
	client *Client
	roster models.Roster
	logger *zap.Logger

	mu    sync.RWMutex
	items []models.Member
	busy  bool
	err   error
}

// NewRosterView builds a view for roster.
func NewRosterView(client *Client, roster models.Roster, logger *zap.Logger) (*RosterView, error) {
	r, ok := models.ParseRoster(string(roster))
	if !ok {
		return nil, fmt.Errorf("unknown roster %q", roster)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterView{client: client, roster: r, logger: logger.With(zap.String("roster", string(r)))}, nil
}

// Roster returns the roster shown by the view.
func (v *RosterView) Roster() models.Roster { return v.roster }

func (v *RosterView) path() string { return "/admin/" + string(v.roster) }

func (v *RosterView) acquire() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.busy {
		return false
	}
	v.busy = true
	return true
}

// Load replaces the cache with a fresh GET. On failure the cache is emptied
// and the error is kept.
func (v *RosterView) Load(ctx context.Context) error {
	if !v.acquire() {
		return ErrBusy
	}
	raw, err := v.client.Get(ctx, v.path())

	var members []models.Member
	if err == nil {
		members = decodeMembers(raw)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.busy = false
	if err != nil {
		v.items = nil
		v.err = err
		return err
	}
	for i := range members {
		members[i].Roster = v.roster
	}
	v.items = members
	v.err = nil
	return nil
}

// Delete removes member id through the API. The cached row is dropped only
// when the API answers 2xx; any failure leaves the cache as it was.
func (v *RosterView) Delete(ctx context.Context, id int64) error {
	if !v.acquire() {
		return ErrBusy
	}
	_, err := v.client.Send(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", v.path(), id), nil)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.busy = false
	if err != nil {
		v.logger.Warn("delete failed", zap.Int64("id", id), zap.Error(err))
		return err
	}
	kept := make([]models.Member, 0, len(v.items))
	for _, m := range v.items {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	v.items = kept
	return nil
}

// Items returns a copy of the cached members.
func (v *RosterView) Items() []models.Member {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]models.Member, len(v.items))
	copy(out, v.items)
	return out
}

// Find returns the cached member with id.
func (v *RosterView) Find(id int64) (models.Member, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, m := range v.items {
		if m.ID == id {
			return m, true
		}
	}
	return models.Member{}, false
}

// Err returns the error of the last load, if any.
func (v *RosterView) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// decodeMembers accepts the same collection shapes as decodeCollection.
func decodeMembers(raw []byte) []models.Member {
	items, ok := collectionItems(raw, 0)
	if !ok {
		return []models.Member{}
	}
	out := make([]models.Member, 0, len(items))
	for _, item := range items {
		var m models.Member
		if err := json.Unmarshal(item, &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}
