package workflow

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is the read-only view of an entity that filtering and sorting need.
type Record interface {
	StatusValue() Status
	SubmissionValue() string
	FieldValue(name string) string
	NumberValue(name string) (float64, bool)
	CreatedTime() time.Time
	DisplayName() string
}

// SortField selects the ordering key.
type SortField string

const (
	SortByDate   SortField = "date"
	SortByName   SortField = "name"
	SortByStatus SortField = "status"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Query is a list-view filter. Every populated criterion must hold for a
// record to match, so criteria may be applied in any order.
type Query struct {
	Search         string
	Status         Status
	SubmissionType string
	Equals         map[string]string
	MinAmount      *float64
	MaxAmount      *float64
	SortBy         SortField
	Order          SortOrder
}

// ParseQuery reads list filters from URL query parameters.
func ParseQuery(values url.Values) Query {
	q := Query{
		Search:         strings.TrimSpace(firstOf(values, "search", "q")),
		Status:         Status(strings.ToLower(strings.TrimSpace(values.Get("status")))),
		SubmissionType: strings.ToLower(strings.TrimSpace(firstOf(values, "submission_type", "type"))),
		SortBy:         SortField(strings.ToLower(strings.TrimSpace(firstOf(values, "sort", "sort_by")))),
		Order:          SortOrder(strings.ToLower(strings.TrimSpace(firstOf(values, "order", "sort_order")))),
	}
	if q.Status == "all" {
		q.Status = ""
	}
	if q.SubmissionType == "all" {
		q.SubmissionType = ""
	}
	q.MinAmount = parseAmount(firstOf(values, "min_amount", "amount_min"))
	q.MaxAmount = parseAmount(firstOf(values, "max_amount", "amount_max"))
	return q
}

// Values encodes the query back into URL parameters.
func (q Query) Values() url.Values {
	values := url.Values{}
	if q.Search != "" {
		values.Set("search", q.Search)
	}
	if q.Status != "" {
		values.Set("status", string(q.Status))
	}
	if q.SubmissionType != "" {
		values.Set("type", q.SubmissionType)
	}
	if q.MinAmount != nil {
		values.Set("min_amount", strconv.FormatFloat(*q.MinAmount, 'f', -1, 64))
	}
	if q.MaxAmount != nil {
		values.Set("max_amount", strconv.FormatFloat(*q.MaxAmount, 'f', -1, 64))
	}
	if q.SortBy != "" {
		values.Set("sort", string(q.SortBy))
	}
	if q.Order != "" {
		values.Set("order", string(q.Order))
	}
	return values
}

// Matches reports whether record satisfies every criterion of q.
func (q Query) Matches(d Descriptor, record Record) bool {
	if q.Status != "" && record.StatusValue() != q.Status {
		return false
	}
	if q.SubmissionType != "" && !strings.EqualFold(record.SubmissionValue(), q.SubmissionType) {
		return false
	}
	for field, want := range q.Equals {
		if !strings.EqualFold(record.FieldValue(field), want) {
			return false
		}
	}
	if q.MinAmount != nil || q.MaxAmount != nil {
		if d.AmountField == "" {
			return false
		}
		amount, ok := record.NumberValue(d.AmountField)
		if !ok {
			return false
		}
		if q.MinAmount != nil && amount < *q.MinAmount {
			return false
		}
		if q.MaxAmount != nil && amount > *q.MaxAmount {
			return false
		}
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		found := false
		for _, field := range d.SearchFields {
			if strings.Contains(strings.ToLower(record.FieldValue(field)), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Apply filters and sorts records. The input slice is not modified.
func Apply[T Record](d Descriptor, q Query, records []T) []T {
	result := make([]T, 0, len(records))
	for _, record := range records {
		if q.Matches(d, record) {
			result = append(result, record)
		}
	}
	Sort(result, q.SortBy, q.Order)
	return result
}

// Sort orders records in place. An empty field leaves the order untouched.
func Sort[T Record](records []T, field SortField, order SortOrder) {
	var less func(a, b T) bool
	switch field {
	case SortByDate:
		less = func(a, b T) bool { return a.CreatedTime().Before(b.CreatedTime()) }
	case SortByName:
		less = func(a, b T) bool { return strings.ToLower(a.DisplayName()) < strings.ToLower(b.DisplayName()) }
	case SortByStatus:
		less = func(a, b T) bool { return a.StatusValue() < b.StatusValue() }
	default:
		return
	}
	desc := order == SortDesc
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return less(records[j], records[i])
		}
		return less(records[i], records[j])
	})
}

func firstOf(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}

func parseAmount(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}
