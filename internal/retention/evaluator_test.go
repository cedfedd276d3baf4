package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func doc(id string, cat Category, created time.Time) Document {
	return Document{ID: id, Status: StatusActiveStorage, RetentionCategory: cat, CreationDate: &created}
}

func TestClassify(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), nil)

	tests := []struct {
		name string
		doc  Document
		want Verdict
	}{
		{
			name: "5y expired one day ago",
			doc:  doc("a", Category5Y, today.AddDate(-5, 0, -1)),
			want: VerdictDestroy,
		},
		{
			name: "5y ending in 170 days",
			doc:  doc("b", Category5Y, today.AddDate(-5, 0, 170)),
			want: VerdictReview,
		},
		{
			name: "5y ending in one year",
			doc:  doc("c", Category5Y, today.AddDate(-4, 0, 0)),
			want: VerdictNone,
		},
		{
			name: "3y ending exactly now is destroyed",
			doc:  doc("d", Category3Y, today.AddDate(-3, 0, 0)),
			want: VerdictDestroy,
		},
		{
			name: "3y ending one second from now is reviewed",
			doc:  doc("d2", Category3Y, today.AddDate(-3, 0, 0).Add(time.Second)),
			want: VerdictReview,
		},
		{
			name: "empty category defaults to 10y",
			doc:  doc("e", "", today.AddDate(-11, 0, 0)),
			want: VerdictDestroy,
		},
		{
			name: "permanent past transfer age",
			doc:  doc("f", CategoryPermanent, today.AddDate(-31, 0, 0)),
			want: VerdictTransfer,
		},
		{
			name: "permanent before transfer age",
			doc:  doc("g", CategoryPermanent, today.AddDate(-5, 0, 0)),
			want: VerdictNone,
		},
		{
			name: "no creation date",
			doc:  Document{ID: "h", RetentionCategory: Category3Y, Status: StatusActiveStorage},
			want: VerdictNone,
		},
		{
			name: "unknown category",
			doc:  doc("i", "7y", today.AddDate(-20, 0, 0)),
			want: VerdictNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Classify(tt.doc, today))
		})
	}
}

func TestClassify_ReviewOnlyFromActiveStorage(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), nil)
	d := doc("a", Category5Y, today.AddDate(-5, 0, 30))
	d.Status = StatusReview

	assert.Equal(t, VerdictNone, e.Classify(d, today))

	d.CreationDate = ptr(today.AddDate(-6, 0, 0))
	assert.Equal(t, VerdictDestroy, e.Classify(d, today), "documents under review still expire")

	d.CreationDate = ptr(today.AddDate(-5, 0, 0))
	assert.Equal(t, VerdictDestroy, e.Classify(d, today), "documents under review expire on the end date")
}

func TestClassify_PermanentNeverDestroyed(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), nil)

	for years := 0; years <= 500; years += 7 {
		d := doc("p", CategoryPermanent, today.AddDate(-years, 0, 0))
		for _, now := range []time.Time{today, today.AddDate(100, 0, 0), today.AddDate(1000, 0, 0)} {
			assert.NotEqual(t, VerdictDestroy, e.Classify(d, now))
		}
	}
}

func TestClassify_TransferDisabled(t *testing.T) {
	e := NewEvaluator(Config{ReviewWindow: DefaultReviewWindow}, nil)
	d := doc("p", CategoryPermanent, today.AddDate(-200, 0, 0))

	assert.Equal(t, VerdictNone, e.Classify(d, today))
}

func TestEvaluate_DisjointLists(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), nil)

	var docs []Document
	for i := -4000; i <= 4000; i += 37 {
		for _, cat := range Categories() {
			created := today.AddDate(-10, 0, i)
			docs = append(docs, doc(string(cat)+time.Duration(i).String(), cat, created))
		}
	}

	res := e.Evaluate(docs, today)

	seen := make(map[string]string)
	add := func(list string, ds []Document) {
		for _, d := range ds {
			prev, dup := seen[d.ID]
			require.False(t, dup, "document %s in both %s and %s", d.ID, prev, list)
			seen[d.ID] = list
		}
	}
	add("transfer", res.ToTransfer)
	add("destroy", res.ToDestroy)
	add("review", res.PendingReview)

	for _, d := range res.ToDestroy {
		assert.NotEqual(t, CategoryPermanent, d.RetentionCategory)
	}
	for _, d := range res.ToTransfer {
		assert.Equal(t, CategoryPermanent, d.RetentionCategory)
	}
}

func TestEvaluate_CountsSkipped(t *testing.T) {
	e := NewEvaluator(DefaultConfig(), nil)
	docs := []Document{
		{ID: "no-date", RetentionCategory: Category3Y},
		doc("bad", "forever-ish", today.AddDate(-50, 0, 0)),
		doc("ok", Category3Y, today.AddDate(-4, 0, 0)),
	}

	res := e.Evaluate(docs, today)

	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []string{"ok"}, IDs(res.ToDestroy))
	assert.Empty(t, res.ToTransfer)
	assert.Empty(t, res.PendingReview)
}

func TestEndDate(t *testing.T) {
	created := time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)
	d := Document{RetentionCategory: Category3Y, CreationDate: &created}

	end, ok := d.EndDate()
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC), end)

	d.RetentionCategory = CategoryPermanent
	_, ok = d.EndDate()
	assert.False(t, ok)
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 10, DaysUntil(today.AddDate(0, 0, 10), today))
	assert.Equal(t, -3, DaysUntil(today.AddDate(0, 0, -3), today))
}

func ptr(t time.Time) *time.Time { return &t }
