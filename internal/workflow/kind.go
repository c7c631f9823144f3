// Package workflow holds the status vocabulary shared by the admin API and its
// clients: entity kinds, their closed status sets, the explicit transition
// table and the per-kind resource descriptors.
package workflow

import "strings"

// Kind identifies a category of entity that moves through an approval workflow.
type Kind string

const (
	KindPilotApplication          Kind = "pilot_application"
	KindEditorApplication         Kind = "editor_application"
	KindReferralApplication       Kind = "referral_application"
	KindBusinessClientApplication Kind = "business_client_application"
	KindOrder                     Kind = "order"
	KindCancellation              Kind = "cancellation"
	KindVideoSubmission           Kind = "video_submission"
)

// Status is a single value of a kind's status enumeration.
type Status string

const (
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusAssigned          Status = "assigned"
	StatusInProgress        Status = "in_progress"
	StatusEditing           Status = "editing"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusSubmitted         Status = "submitted"
	StatusReviewChanges     Status = "review_changes"
	StatusForwardedToEditor Status = "forwarded_to_editor"
)

// Submission types gate which video transitions are offered.
const (
	SubmissionPilot  = "pilot"
	SubmissionEditor = "editor"
)

// Kinds lists every workflow kind in display order.
func Kinds() []Kind {
	return []Kind{
		KindPilotApplication,
		KindEditorApplication,
		KindReferralApplication,
		KindBusinessClientApplication,
		KindOrder,
		KindCancellation,
		KindVideoSubmission,
	}
}

// ParseKind accepts the canonical kind name as well as the short forms used in
// REST paths ("pilot", "orders", "video-reviews", ...).
func ParseKind(raw string) (Kind, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	switch key {
	case string(KindPilotApplication), "pilot":
		return KindPilotApplication, true
	case string(KindEditorApplication), "editor":
		return KindEditorApplication, true
	case string(KindReferralApplication), "referral":
		return KindReferralApplication, true
	case string(KindBusinessClientApplication), "business_client":
		return KindBusinessClientApplication, true
	case string(KindOrder), "orders", "booking", "bookings":
		return KindOrder, true
	case string(KindCancellation), "cancellations":
		return KindCancellation, true
	case string(KindVideoSubmission), "video_submissions", "video_reviews", "video_review", "videos":
		return KindVideoSubmission, true
	}
	return "", false
}

// ApplicationKind maps the {type} segment of /admin/applications/{type} to a kind.
func ApplicationKind(applicationType string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(applicationType)) {
	case "pilot":
		return KindPilotApplication, true
	case "editor":
		return KindEditorApplication, true
	case "referral":
		return KindReferralApplication, true
	case "business_client":
		return KindBusinessClientApplication, true
	}
	return "", false
}

// IsApplication reports whether the kind is one of the four application kinds.
func (k Kind) IsApplication() bool {
	switch k {
	case KindPilotApplication, KindEditorApplication, KindReferralApplication, KindBusinessClientApplication:
		return true
	}
	return false
}

// ApplicationType returns the REST path segment for application kinds.
func (k Kind) ApplicationType() string {
	if !k.IsApplication() {
		return ""
	}
	return strings.TrimSuffix(string(k), "_application")
}

// NormalizeSubmissionType lower-cases the value and drops anything that is not
// a known submission type. Only video submissions carry one.
func NormalizeSubmissionType(kind Kind, raw string) string {
	if kind != KindVideoSubmission {
		return ""
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SubmissionPilot:
		return SubmissionPilot
	case SubmissionEditor:
		return SubmissionEditor
	}
	return ""
}
