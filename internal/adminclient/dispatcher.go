package adminclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/workflow"
)

// Notice confirms a completed transition.
type Notice struct {
	Kind     workflow.Kind
	ID       int64
	From     workflow.Status
	To       workflow.Status
	Notified bool
	Message  string
}

// Dispatcher is the only mutator. It validates the target against the
// vocabulary, issues exactly one request and refreshes the list on success.
type Dispatcher struct {
	client  *Client
	vocab   *workflow.Vocabulary
	details *DetailView
	logger  *zap.Logger

	mu   sync.Mutex
	busy bool
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(client *Client, vocab *workflow.Vocabulary, details *DetailView, logger *zap.Logger) *Dispatcher {
	if vocab == nil {
		vocab = workflow.DefaultVocabulary()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{client: client, vocab: vocab, details: details, logger: logger}
}

// Dispatch moves the opened entity to target. A detail that is closed, or
// whose status does not offer target, is refused before any request. On
// success the detail takes the new status and its remaining actions, the
// comment is cleared, the detail is closed, its cache entry dropped and list
// reloaded. On failure the detail stays open and the list is untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, detail *Detail, target workflow.Status, list *ListView) (*Notice, error) {
	if detail == nil {
		return nil, fmt.Errorf("no entity selected")
	}

	d.mu.Lock()
	if d.busy {
		d.mu.Unlock()
		return nil, ErrBusy
	}
	d.busy = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	entity := detail.Entity
	if !detail.Open {
		return nil, fmt.Errorf("%w: %s %d is closed; reopen it from the refreshed list", ErrTransitionNotAllowed, entity.Kind, entity.ID)
	}
	action, ok := d.actionFor(entity.Kind, entity.Status, entity.SubmissionType, target)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s -> %s", ErrTransitionNotAllowed, entity.Kind, entity.Status, target)
	}
	descriptor, ok := workflow.Describe(entity.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", entity.Kind)
	}

	raw, err := d.client.Send(ctx, descriptor.Endpoints.TransitionMethod, descriptor.TransitionPath(entity.ID, action), requestBody(descriptor.Endpoints.Body, action, detail.Comment))
	if err != nil {
		return nil, err
	}

	notice := &Notice{Kind: entity.Kind, ID: entity.ID, From: entity.Status, To: target}
	var result struct {
		Notified bool   `json:"notified"`
		Message  string `json:"message"`
	}
	if json.Unmarshal(unwrapData(raw), &result) == nil {
		notice.Notified = result.Notified
		notice.Message = result.Message
	}
	if notice.Message == "" {
		notice.Message = confirmation(descriptor, target)
	}

	detail.Entity.Status = target
	detail.Actions = d.vocab.Actions(entity.Kind, target, entity.SubmissionType)
	detail.Comment = ""
	detail.Open = false
	if d.details != nil {
		d.details.Invalidate(entity.Kind, entity.ID)
	}
	if list != nil {
		if err := list.Load(ctx); err != nil {
			d.logger.Warn("list refresh after transition failed", zap.String("kind", string(entity.Kind)), zap.Error(err))
		}
	}
	return notice, nil
}

func (d *Dispatcher) actionFor(kind workflow.Kind, status workflow.Status, submissionType string, target workflow.Status) (workflow.Action, bool) {
	for _, a := range d.vocab.Actions(kind, status, submissionType) {
		if a.Target == target {
			return a, true
		}
	}
	return workflow.Action{}, false
}

func requestBody(style workflow.BodyStyle, action workflow.Action, comment string) map[string]string {
	switch style {
	case workflow.BodyStatus:
		return map[string]string{"status": string(action.Target), "admin_comments": comment}
	case workflow.BodyAction:
		return map[string]string{"action": action.Name, "comments": comment}
	default:
		return map[string]string{"comments": comment}
	}
}

func confirmation(d workflow.Descriptor, target workflow.Status) string {
	label := strings.TrimSuffix(d.Label, "s")
	msg := fmt.Sprintf("%s marked %s", label, strings.ReplaceAll(string(target), "_", " "))
	if d.Notifies && (target == workflow.StatusApproved || target == workflow.StatusRejected) {
		msg += "; the affected party has been notified via email"
	}
	return msg
}
