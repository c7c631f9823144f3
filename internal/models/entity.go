package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hmxfpv/admin-api/internal/workflow"
)

// Attributes holds kind-specific pass-through fields stored as JSONB.
type Attributes map[string]interface{}

// Value implements driver.Valuer.
func (a Attributes) Value() (driver.Value, error) {
	if a == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Attributes) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Attributes{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported attributes type %T", src)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		*a = Attributes{}
		return nil
	}
	out := Attributes{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	*a = out
	return nil
}

// String renders an attribute for display, search and export.
func (a Attributes) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}

// Entity is one record of any workflow kind. Kind-specific columns live in
// Attributes and are flattened into the JSON representation.
type Entity struct {
	ID             int64           `db:"id"`
	Kind           workflow.Kind   `db:"-"`
	Status         workflow.Status `db:"status"`
	SubmissionType string          `db:"submission_type"`
	AdminComments  string          `db:"admin_comments"`
	Attributes     Attributes      `db:"attributes"`
	Version        int             `db:"version"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

var coreEntityKeys = map[string]struct{}{
	"id": {}, "video_id": {}, "kind": {}, "status": {}, "submission_type": {},
	"admin_comments": {}, "review_notes": {}, "version": {}, "created_at": {}, "updated_at": {},
}

// MarshalJSON flattens attributes next to the core fields.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Attributes)+8)
	for k, v := range e.Attributes {
		if _, core := coreEntityKeys[k]; core {
			continue
		}
		out[k] = v
	}
	out["id"] = e.ID
	if e.Kind != "" {
		out["kind"] = e.Kind
	}
	out["status"] = e.Status
	if e.SubmissionType != "" {
		out["submission_type"] = e.SubmissionType
	}
	out["admin_comments"] = e.AdminComments
	out["version"] = e.Version
	if !e.CreatedAt.IsZero() {
		out["created_at"] = e.CreatedAt
	}
	if !e.UpdatedAt.IsZero() {
		out["updated_at"] = e.UpdatedAt
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the loose shapes backends emit: ids as numbers or
// strings, video_id in place of id, review_notes in place of admin_comments and
// several timestamp layouts.
func (e *Entity) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	raw := map[string]interface{}{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	out := Entity{Attributes: Attributes{}}
	for k, v := range raw {
		if _, core := coreEntityKeys[k]; core {
			continue
		}
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				out.Attributes[k] = f
				continue
			}
		}
		out.Attributes[k] = v
	}

	id, err := parseID(firstPresent(raw, "id", "video_id"))
	if err != nil {
		return fmt.Errorf("entity id: %w", err)
	}
	out.ID = id
	out.Kind = workflow.Kind(stringOf(raw["kind"]))
	out.Status = workflow.Status(strings.ToLower(stringOf(raw["status"])))
	out.SubmissionType = strings.ToLower(stringOf(raw["submission_type"]))
	out.AdminComments = stringOf(firstPresent(raw, "admin_comments", "review_notes"))
	if v, err := parseID(raw["version"]); err == nil {
		out.Version = int(v)
	}
	out.CreatedAt = parseTime(stringOf(raw["created_at"]))
	out.UpdatedAt = parseTime(stringOf(raw["updated_at"]))

	*e = out
	return nil
}

// Merge overlays fields from detail onto a copy of e. Core fields of e are
// kept unless detail carries a non-zero value.
func (e Entity) Merge(detail Entity) Entity {
	merged := e
	merged.Attributes = make(Attributes, len(e.Attributes)+len(detail.Attributes))
	for k, v := range e.Attributes {
		merged.Attributes[k] = v
	}
	for k, v := range detail.Attributes {
		merged.Attributes[k] = v
	}
	if detail.Status != "" {
		merged.Status = detail.Status
	}
	if detail.SubmissionType != "" {
		merged.SubmissionType = detail.SubmissionType
	}
	if detail.AdminComments != "" {
		merged.AdminComments = detail.AdminComments
	}
	if detail.Version != 0 {
		merged.Version = detail.Version
	}
	if !detail.CreatedAt.IsZero() {
		merged.CreatedAt = detail.CreatedAt
	}
	if !detail.UpdatedAt.IsZero() {
		merged.UpdatedAt = detail.UpdatedAt
	}
	return merged
}

// StatusValue implements workflow.Record.
func (e Entity) StatusValue() workflow.Status { return e.Status }

// SubmissionValue implements workflow.Record.
func (e Entity) SubmissionValue() string { return e.SubmissionType }

// CreatedTime implements workflow.Record.
func (e Entity) CreatedTime() time.Time { return e.CreatedAt }

// FieldValue implements workflow.Record.
func (e Entity) FieldValue(name string) string {
	switch name {
	case "id":
		return strconv.FormatInt(e.ID, 10)
	case "status":
		return string(e.Status)
	case "submission_type":
		return e.SubmissionType
	case "admin_comments":
		return e.AdminComments
	case "created_at":
		if e.CreatedAt.IsZero() {
			return ""
		}
		return e.CreatedAt.Format(time.RFC3339)
	}
	return e.Attributes.String(name)
}

// NumberValue implements workflow.Record.
func (e Entity) NumberValue(name string) (float64, bool) {
	raw := strings.TrimSpace(e.FieldValue(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// DisplayName implements workflow.Record.
func (e Entity) DisplayName() string {
	for _, key := range []string{"name", "full_name", "customer_name", "company_name", "client_name"} {
		if v := e.Attributes.String(key); v != "" {
			return v
		}
	}
	return ""
}

// Email returns the contact address of the affected party, if any.
func (e Entity) Email() string {
	for _, key := range []string{"email", "customer_email", "client_email"} {
		if v := e.Attributes.String(key); v != "" {
			return v
		}
	}
	return ""
}

// LinkedOrderID returns the order a cancellation or video submission refers to.
func (e Entity) LinkedOrderID() (int64, bool) {
	for _, key := range []string{"order_id", "booking_id"} {
		if id, err := parseID(e.Attributes[key]); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

func firstPresent(raw map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringOf(v interface{}) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func parseID(v interface{}) (int64, error) {
	switch typed := v.(type) {
	case nil:
		return 0, nil
	case json.Number:
		return strconv.ParseInt(typed.String(), 10, 64)
	case float64:
		return int64(typed), nil
	case int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, nil
		}
		return strconv.ParseInt(trimmed, 10, 64)
	}
	return 0, fmt.Errorf("unsupported id type %T", v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
}

func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// StatusChange is one row of an entity's transition history.
type StatusChange struct {
	ID         int64           `db:"id" json:"id"`
	Kind       workflow.Kind   `db:"kind" json:"kind"`
	EntityID   int64           `db:"entity_id" json:"entity_id"`
	FromStatus workflow.Status `db:"from_status" json:"from_status"`
	ToStatus   workflow.Status `db:"to_status" json:"to_status"`
	Comment    *string         `db:"comment" json:"comment,omitempty"`
	ChangedBy  *string         `db:"changed_by" json:"changed_by,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// EntityFilter narrows list queries at the database level. Free-text search
// and sorting run in memory through workflow.Query.
type EntityFilter struct {
	Status         workflow.Status
	SubmissionType string
}
