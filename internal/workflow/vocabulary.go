package workflow

import (
	"sort"
	"strings"
)

// OrderPolicy controls which order transitions are offered.
type OrderPolicy string

const (
	// OrderPolicyFree offers every order status other than the current one.
	OrderPolicyFree OrderPolicy = "free"
	// OrderPolicySequential only offers the next step of the booking lifecycle
	// plus cancellation.
	OrderPolicySequential OrderPolicy = "sequential"
)

// Action is a single transition offered for an entity.
type Action struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Target Status `json:"target"`
}

// Rule is one row of the transition table.
type Rule struct {
	Kind           Kind     `json:"kind"`
	From           Status   `json:"from"`
	SubmissionType string   `json:"submission_type,omitempty"`
	Actions        []Action `json:"actions"`
}

type ruleKey struct {
	kind           Kind
	from           Status
	submissionType string
}

var (
	actionApprove = Action{Name: "approve", Label: "Approve", Target: StatusApproved}
	actionReject  = Action{Name: "reject", Label: "Reject", Target: StatusRejected}

	actionForward        = Action{Name: "forward_to_editor", Label: "Forward to editor", Target: StatusForwardedToEditor}
	actionMarkComplete   = Action{Name: "mark_complete", Label: "Mark complete", Target: StatusCompleted}
	actionRequestChanges = Action{Name: "request_changes", Label: "Request changes", Target: StatusReviewChanges}
)

var statusSets = map[Kind][]Status{
	KindPilotApplication:          {StatusPending, StatusApproved, StatusRejected},
	KindEditorApplication:         {StatusPending, StatusApproved, StatusRejected},
	KindReferralApplication:       {StatusPending, StatusApproved, StatusRejected},
	KindBusinessClientApplication: {StatusPending, StatusApproved, StatusRejected},
	KindCancellation:              {StatusPending, StatusApproved, StatusRejected},
	KindOrder:                     {StatusPending, StatusAssigned, StatusInProgress, StatusEditing, StatusCompleted, StatusCancelled},
	KindVideoSubmission:           {StatusSubmitted, StatusReviewChanges, StatusForwardedToEditor, StatusCompleted},
}

var initialStatus = map[Kind]Status{
	KindPilotApplication:          StatusPending,
	KindEditorApplication:         StatusPending,
	KindReferralApplication:       StatusPending,
	KindBusinessClientApplication: StatusPending,
	KindCancellation:              StatusPending,
	KindOrder:                     StatusPending,
	KindVideoSubmission:           StatusSubmitted,
}

// baseRules are the transitions that do not depend on the order policy.
var baseRules = []Rule{
	{Kind: KindPilotApplication, From: StatusPending, Actions: []Action{actionApprove, actionReject}},
	{Kind: KindEditorApplication, From: StatusPending, Actions: []Action{actionApprove, actionReject}},
	{Kind: KindReferralApplication, From: StatusPending, Actions: []Action{actionApprove, actionReject}},
	{Kind: KindBusinessClientApplication, From: StatusPending, Actions: []Action{actionApprove, actionReject}},
	{Kind: KindCancellation, From: StatusPending, Actions: []Action{actionApprove, actionReject}},
	{Kind: KindVideoSubmission, From: StatusSubmitted, SubmissionType: SubmissionPilot, Actions: []Action{actionForward, actionRequestChanges}},
	{Kind: KindVideoSubmission, From: StatusSubmitted, SubmissionType: SubmissionEditor, Actions: []Action{actionMarkComplete, actionRequestChanges}},
}

var sequentialOrderRules = []Rule{
	{Kind: KindOrder, From: StatusPending, Actions: []Action{orderAction(StatusAssigned), orderAction(StatusCancelled)}},
	{Kind: KindOrder, From: StatusAssigned, Actions: []Action{orderAction(StatusInProgress), orderAction(StatusCancelled)}},
	{Kind: KindOrder, From: StatusInProgress, Actions: []Action{orderAction(StatusEditing), orderAction(StatusCancelled)}},
	{Kind: KindOrder, From: StatusEditing, Actions: []Action{orderAction(StatusCompleted), orderAction(StatusCancelled)}},
}

// Vocabulary answers which transitions are valid for an entity. It is immutable
// once built and safe for concurrent use.
type Vocabulary struct {
	policy OrderPolicy
	rules  map[ruleKey][]Action
	order  []ruleKey
}

// NewVocabulary builds the transition table for the given order policy. Unknown
// policies fall back to OrderPolicyFree.
func NewVocabulary(policy OrderPolicy) *Vocabulary {
	if policy != OrderPolicySequential {
		policy = OrderPolicyFree
	}
	v := &Vocabulary{policy: policy, rules: make(map[ruleKey][]Action)}
	for _, rule := range baseRules {
		v.add(rule)
	}
	if policy == OrderPolicySequential {
		for _, rule := range sequentialOrderRules {
			v.add(rule)
		}
	} else {
		for _, rule := range freeOrderRules() {
			v.add(rule)
		}
	}
	return v
}

// DefaultVocabulary uses the free order policy.
func DefaultVocabulary() *Vocabulary {
	return NewVocabulary(OrderPolicyFree)
}

func (v *Vocabulary) add(rule Rule) {
	key := ruleKey{kind: rule.Kind, from: rule.From, submissionType: rule.SubmissionType}
	if _, exists := v.rules[key]; !exists {
		v.order = append(v.order, key)
	}
	v.rules[key] = append([]Action(nil), rule.Actions...)
}

// Policy returns the order policy the table was built with.
func (v *Vocabulary) Policy() OrderPolicy {
	return v.policy
}

// Actions returns the transitions offered for an entity in the given state.
// Statuses outside the kind's enumeration yield no actions.
func (v *Vocabulary) Actions(kind Kind, status Status, submissionType string) []Action {
	if !IsValidStatus(kind, status) {
		return nil
	}
	key := ruleKey{kind: kind, from: status, submissionType: NormalizeSubmissionType(kind, submissionType)}
	actions := v.rules[key]
	if len(actions) == 0 {
		return nil
	}
	return append([]Action(nil), actions...)
}

// Allowed reports whether target is reachable from status in one transition.
func (v *Vocabulary) Allowed(kind Kind, status Status, submissionType string, target Status) bool {
	for _, action := range v.Actions(kind, status, submissionType) {
		if action.Target == target {
			return true
		}
	}
	return false
}

// ActionByName resolves an action name ("approve", "forward_to_editor") for the
// entity state.
func (v *Vocabulary) ActionByName(kind Kind, status Status, submissionType, name string) (Action, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, action := range v.Actions(kind, status, submissionType) {
		if action.Name == name {
			return action, true
		}
	}
	return Action{}, false
}

// IsTerminal reports whether no transition is offered from status.
func (v *Vocabulary) IsTerminal(kind Kind, status Status, submissionType string) bool {
	return len(v.Actions(kind, status, submissionType)) == 0
}

// Table returns every rule in a stable order, suitable for auditing.
func (v *Vocabulary) Table() []Rule {
	keys := append([]ruleKey(nil), v.order...)
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].kind != keys[j].kind {
			return kindIndex(keys[i].kind) < kindIndex(keys[j].kind)
		}
		return false
	})
	rules := make([]Rule, 0, len(keys))
	for _, key := range keys {
		rules = append(rules, Rule{
			Kind:           key.kind,
			From:           key.from,
			SubmissionType: key.submissionType,
			Actions:        append([]Action(nil), v.rules[key]...),
		})
	}
	return rules
}

// Statuses returns the closed status enumeration for kind.
func Statuses(kind Kind) []Status {
	return append([]Status(nil), statusSets[kind]...)
}

// InitialStatus is the status a freshly created entity of kind starts in.
func InitialStatus(kind Kind) Status {
	return initialStatus[kind]
}

// IsValidStatus reports whether status belongs to kind's enumeration.
func IsValidStatus(kind Kind, status Status) bool {
	for _, candidate := range statusSets[kind] {
		if candidate == status {
			return true
		}
	}
	return false
}

// ParseStatus normalises raw input and validates it against kind.
func ParseStatus(kind Kind, raw string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	return status, IsValidStatus(kind, status)
}

func freeOrderRules() []Rule {
	statuses := statusSets[KindOrder]
	rules := make([]Rule, 0, len(statuses))
	for _, from := range statuses {
		actions := make([]Action, 0, len(statuses)-1)
		for _, to := range statuses {
			if to == from {
				continue
			}
			actions = append(actions, orderAction(to))
		}
		rules = append(rules, Rule{Kind: KindOrder, From: from, Actions: actions})
	}
	return rules
}

func orderAction(target Status) Action {
	label := strings.ReplaceAll(string(target), "_", " ")
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return Action{Name: "set_" + string(target), Label: label, Target: target}
}

func kindIndex(kind Kind) int {
	for i, k := range Kinds() {
		if k == kind {
			return i
		}
	}
	return len(Kinds())
}
