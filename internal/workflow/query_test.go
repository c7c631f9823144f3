package workflow

import (
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rowStub struct {
	id      int
	status  Status
	subType string
	fields  map[string]string
	created time.Time
}

func (r rowStub) StatusValue() Status { return r.status }
func (r rowStub) SubmissionValue() string { return r.subType }
func (r rowStub) FieldValue(name string) string { return r.fields[name] }
func (r rowStub) CreatedTime() time.Time { return r.created }
func (r rowStub) DisplayName() string { return r.fields["name"] }
func (r rowStub) NumberValue(name string) (float64, bool) {
	v, err := strconv.ParseFloat(r.fields[name], 64)
	return v, err == nil
}

func ids(rows []rowStub) []int {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.id)
	}
	return out
}

func pilotApplications() []rowStub {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	return []rowStub{
		{id: 1, status: StatusPending, fields: map[string]string{"name": "Asha Rao", "email": "asha@example.com", "phone": "555-0101"}, created: base},
		{id: 2, status: StatusApproved, fields: map[string]string{"name": "ben Ortiz", "email": "ben@example.com", "phone": "555-0102"}, created: base.Add(48 * time.Hour)},
		{id: 3, status: StatusRejected, fields: map[string]string{"name": "Chen Li", "email": "chen@example.com", "phone": "555-0103"}, created: base.Add(24 * time.Hour)},
	}
}

func TestQueryStatusFilter(t *testing.T) {
	d, _ := Describe(KindPilotApplication)
	got := Apply(d, Query{Status: StatusPending}, pilotApplications())
	assert.Equal(t, []int{1}, ids(got))
}

func TestQuerySearchWithoutMatchIsEmpty(t *testing.T) {
	d, _ := Describe(KindPilotApplication)
	got := Apply(d, Query{Search: "smith"}, pilotApplications())
	assert.Empty(t, got)
}

func TestQuerySearchIsCaseInsensitiveAcrossFields(t *testing.T) {
	d, _ := Describe(KindPilotApplication)
	assert.Equal(t, []int{2}, ids(Apply(d, Query{Search: "BEN@"}, pilotApplications())))
	assert.Equal(t, []int{3}, ids(Apply(d, Query{Search: "0103"}, pilotApplications())))
}

func TestQueryFiltersComposeInAnyOrder(t *testing.T) {
	d, _ := Describe(KindCancellation)
	rows := []rowStub{}
	statuses := []Status{StatusPending, StatusApproved, StatusRejected}
	for i := 0; i < 12; i++ {
		rows = append(rows, rowStub{
			id:     i,
			status: statuses[i%3],
			fields: map[string]string{
				"reason":        fmt.Sprintf("reason %d weather", i),
				"refund_amount": fmt.Sprintf("%d", i*100),
			},
		})
	}
	lo, hi := 200.0, 900.0
	combined := Apply(d, Query{Status: StatusPending, Search: "weather", MinAmount: &lo, MaxAmount: &hi}, rows)

	step := Apply(d, Query{MinAmount: &lo}, rows)
	step = Apply(d, Query{Search: "weather"}, step)
	step = Apply(d, Query{Status: StatusPending}, step)
	step = Apply(d, Query{MaxAmount: &hi}, step)

	assert.Equal(t, ids(combined), ids(step))
	assert.Equal(t, []int{3, 6, 9}, ids(combined))
}

func TestQueryAmountRangeRequiresAmountField(t *testing.T) {
	d, _ := Describe(KindVideoSubmission)
	floor := 1.0
	assert.Empty(t, Apply(d, Query{MinAmount: &floor}, []rowStub{{id: 1, status: StatusSubmitted}}))
}

func TestQuerySubmissionTypeAndEquals(t *testing.T) {
	d, _ := Describe(KindVideoSubmission)
	rows := []rowStub{
		{id: 1, status: StatusSubmitted, subType: "pilot", fields: map[string]string{"order_id": "4"}},
		{id: 2, status: StatusSubmitted, subType: "editor", fields: map[string]string{"order_id": "4"}},
		{id: 3, status: StatusSubmitted, subType: "editor", fields: map[string]string{"order_id": "5"}},
	}
	got := Apply(d, Query{SubmissionType: "editor", Equals: map[string]string{"order_id": "4"}}, rows)
	assert.Equal(t, []int{2}, ids(got))
}

func TestSortOrders(t *testing.T) {
	rows := pilotApplications()

	Sort(rows, SortByName, SortAsc)
	assert.Equal(t, []int{1, 2, 3}, ids(rows))

	Sort(rows, SortByDate, SortDesc)
	assert.Equal(t, []int{2, 3, 1}, ids(rows))

	Sort(rows, SortByStatus, SortAsc)
	assert.Equal(t, []int{2, 1, 3}, ids(rows))
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	d, _ := Describe(KindPilotApplication)
	rows := pilotApplications()
	_ = Apply(d, Query{SortBy: SortByDate, Order: SortDesc}, rows)
	assert.Equal(t, []int{1, 2, 3}, ids(rows))
}

func TestParseQueryRoundTrip(t *testing.T) {
	values := url.Values{}
	values.Set("q", "drone")
	values.Set("status", "ALL")
	values.Set("type", "pilot")
	values.Set("min_amount", "10.5")
	values.Set("max_amount", "oops")
	values.Set("sort_by", "name")
	values.Set("order", "desc")

	q := ParseQuery(values)
	assert.Equal(t, "drone", q.Search)
	assert.Empty(t, q.Status)
	assert.Equal(t, "pilot", q.SubmissionType)
	require.NotNil(t, q.MinAmount)
	assert.Equal(t, 10.5, *q.MinAmount)
	assert.Nil(t, q.MaxAmount)
	assert.Equal(t, SortByName, q.SortBy)
	assert.Equal(t, SortDesc, q.Order)

	encoded := q.Values()
	assert.Equal(t, "drone", encoded.Get("search"))
	assert.Equal(t, "10.5", encoded.Get("min_amount"))
}
