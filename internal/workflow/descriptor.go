package workflow

import (
	"strconv"
	"strings"
)

// BodyStyle selects the JSON shape of a transition request.
type BodyStyle string

const (
	// BodyDecisionPath posts {comments} to a path ending in the action name.
	BodyDecisionPath BodyStyle = "decision_path"
	// BodyStatus sends {status, admin_comments}.
	BodyStatus BodyStyle = "status"
	// BodyAction sends {action, comments}.
	BodyAction BodyStyle = "action"
)

// Endpoints describes where a kind lives on the REST surface. Paths are
// relative to the API prefix and may contain {id} and {action} placeholders.
type Endpoints struct {
	List             string    `json:"list"`
	Detail           string    `json:"detail"`
	TransitionMethod string    `json:"transition_method"`
	Transition       string    `json:"transition"`
	Body             BodyStyle `json:"body"`
}

// Descriptor is the per-kind configuration of the generic resource workflow.
type Descriptor struct {
	Kind          Kind      `json:"kind"`
	Label         string    `json:"label"`
	Table         string    `json:"-"`
	Statuses      []Status  `json:"statuses"`
	Initial       Status    `json:"initial"`
	SearchFields  []string  `json:"search_fields"`
	AmountField   string    `json:"amount_field,omitempty"`
	ExportColumns []string  `json:"export_columns"`
	Endpoints     Endpoints `json:"endpoints"`
	// Notifies is true when a decision on this kind emails the affected party.
	Notifies bool `json:"notifies"`
}

var descriptors = map[Kind]Descriptor{
	KindPilotApplication: applicationDescriptor(KindPilotApplication, "Pilot applications",
		[]string{"name", "email", "phone", "location", "license_number", "drone_model", "experience"}),
	KindEditorApplication: applicationDescriptor(KindEditorApplication, "Editor applications",
		[]string{"name", "email", "phone", "location", "software", "portfolio_url", "experience"}),
	KindReferralApplication: applicationDescriptor(KindReferralApplication, "Referral applications",
		[]string{"name", "email", "phone", "company", "message"}),
	KindBusinessClientApplication: applicationDescriptor(KindBusinessClientApplication, "Business client applications",
		[]string{"name", "email", "phone", "company_name", "industry", "message"}),
	KindOrder: {
		Kind:          KindOrder,
		Label:         "Orders",
		Table:         "orders",
		SearchFields:  []string{"customer_name", "email", "phone", "location", "package", "transaction_id"},
		AmountField:   "amount",
		ExportColumns: []string{"id", "customer_name", "email", "location", "package", "amount", "status", "created_at"},
		Endpoints: Endpoints{
			List:             "/admin/orders",
			Detail:           "/admin/orders/{id}",
			TransitionMethod: "PUT",
			Transition:       "/admin/orders/{id}/status",
			Body:             BodyStatus,
		},
	},
	KindCancellation: {
		Kind:          KindCancellation,
		Label:         "Cancellations",
		Table:         "cancellations",
		SearchFields:  []string{"booking_id", "customer_name", "email", "reason"},
		AmountField:   "refund_amount",
		ExportColumns: []string{"id", "booking_id", "customer_name", "reason", "refund_amount", "status", "created_at"},
		Endpoints: Endpoints{
			List:             "/admin/cancellations",
			Detail:           "/admin/cancellations/{id}",
			TransitionMethod: "PUT",
			Transition:       "/admin/cancellations/{id}",
			Body:             BodyAction,
		},
		Notifies: true,
	},
	KindVideoSubmission: {
		Kind:          KindVideoSubmission,
		Label:         "Video reviews",
		Table:         "video_reviews",
		SearchFields:  []string{"booking_id", "client_name", "pilot_name", "editor_name", "drive_link"},
		ExportColumns: []string{"id", "order_id", "submission_type", "pilot_name", "editor_name", "drive_link", "status", "created_at"},
		Endpoints: Endpoints{
			List:             "/admin/video-reviews",
			Detail:           "/admin/video-reviews/{id}",
			TransitionMethod: "PUT",
			Transition:       "/admin/video-reviews/{id}",
			Body:             BodyStatus,
		},
	},
}

func applicationDescriptor(kind Kind, label string, search []string) Descriptor {
	appType := kind.ApplicationType()
	return Descriptor{
		Kind:          kind,
		Label:         label,
		Table:         appType + "_applications",
		SearchFields:  search,
		ExportColumns: []string{"id", "name", "email", "phone", "status", "created_at"},
		Endpoints: Endpoints{
			List:             "/admin/applications/" + appType,
			Detail:           "/admin/applications/" + appType + "/{id}",
			TransitionMethod: "POST",
			Transition:       "/admin/applications/" + appType + "/{id}/{action}",
			Body:             BodyDecisionPath,
		},
		Notifies: true,
	}
}

// Describe returns the descriptor for kind.
func Describe(kind Kind) (Descriptor, bool) {
	d, ok := descriptors[kind]
	if !ok {
		return Descriptor{}, false
	}
	d.Statuses = Statuses(kind)
	d.Initial = InitialStatus(kind)
	d.SearchFields = append([]string(nil), d.SearchFields...)
	d.ExportColumns = append([]string(nil), d.ExportColumns...)
	return d, true
}

// Descriptors returns every descriptor in kind order.
func Descriptors() []Descriptor {
	result := make([]Descriptor, 0, len(descriptors))
	for _, kind := range Kinds() {
		if d, ok := Describe(kind); ok {
			result = append(result, d)
		}
	}
	return result
}

// ListPath expands the list endpoint.
func (d Descriptor) ListPath() string {
	return d.Endpoints.List
}

// DetailPath expands the detail endpoint for id.
func (d Descriptor) DetailPath(id int64) string {
	return expand(d.Endpoints.Detail, id, "")
}

// TransitionPath expands the transition endpoint for id and action.
func (d Descriptor) TransitionPath(id int64, action Action) string {
	return expand(d.Endpoints.Transition, id, action.Name)
}

func expand(template string, id int64, action string) string {
	out := strings.ReplaceAll(template, "{id}", strconv.FormatInt(id, 10))
	return strings.ReplaceAll(out, "{action}", action)
}
