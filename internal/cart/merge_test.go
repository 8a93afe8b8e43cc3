package cart

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func blackPixel(qty int) Item {
	return Item{ID: "42", Title: "Pixel 8", Condition: "Good", Storage: "128GB", Color: "Black", Price: 500, Quantity: qty}
}

func TestNewComputesTotals(t *testing.T) {
	c := New([]Item{
		blackPixel(2),
		{ID: "7", Condition: "Excellent", Storage: "256GB", Color: "Blue", Price: 19.99, Quantity: 3},
	})
	assert.Equal(t, 5, c.TotalItems)
	assert.InDelta(t, 1059.97, c.SubTotalPrice, 1e-9)
}

func TestMergeMatchingLineAddsOne(t *testing.T) {
	before := New([]Item{blackPixel(2)})
	pending := PendingItem{ID: "42", Condition: "Good", Storage: "128GB", Color: "Black", Price: 500}

	after, matched := Merge(before, pending)
	require.True(t, matched)
	require.Len(t, after.Items, 1)
	assert.Equal(t, 3, after.Items[0].Quantity)
	assert.Equal(t, 3, after.TotalItems)
	assert.Equal(t, 1500.0, after.SubTotalPrice)

	assert.Equal(t, 2, before.Items[0].Quantity, "input cart must not be mutated")
}

func TestMergeMatchingIgnoresPendingQuantity(t *testing.T) {
	before := New([]Item{blackPixel(1)})
	pending := PendingItem{ID: "42", Condition: "Good", Storage: "128GB", Color: "Black", Price: 500, Quantity: intPtr(4)}

	after, _ := Merge(before, pending)
	assert.Equal(t, 2, after.Items[0].Quantity)
	assert.Equal(t, 2, after.TotalItems)
}

func TestMergeNewLineFixedIncrement(t *testing.T) {
	before := New([]Item{blackPixel(2)})
	pending := PendingItem{ID: "42", Condition: "Good", Storage: "256GB", Color: "Black", Price: 600, Quantity: intPtr(3)}

	after, matched := Merge(before, pending)
	require.False(t, matched)
	require.Len(t, after.Items, 2)
	assert.Equal(t, 3, after.Items[1].Quantity)
	assert.Equal(t, before.TotalItems+1, after.TotalItems)
	assert.Equal(t, before.SubTotalPrice+600, after.SubTotalPrice)
}

func TestMergeIntoEmptyCart(t *testing.T) {
	after, matched := Merge(New(nil), PendingItem{ID: "9", Condition: "Fair", Storage: "64GB", Color: "Red", Price: 120.5, Title: "iPhone 11"})
	require.False(t, matched)
	want := Cart{
		Items:         []Item{{ID: "9", Title: "iPhone 11", Condition: "Fair", Storage: "64GB", Color: "Red", Price: 120.5, Quantity: 1}},
		TotalItems:    1,
		SubTotalPrice: 120.5,
	}
	if diff := cmp.Diff(want, after); diff != "" {
		t.Fatalf("merged cart mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeKeyRequiresEveryField(t *testing.T) {
	base := New([]Item{blackPixel(1)})
	variants := []PendingItem{
		{ID: "43", Condition: "Good", Storage: "128GB", Color: "Black", Price: 500},
		{ID: "42", Condition: "Fair", Storage: "128GB", Color: "Black", Price: 500},
		{ID: "42", Condition: "Good", Storage: "64GB", Color: "Black", Price: 500},
		{ID: "42", Condition: "Good", Storage: "128GB", Color: "White", Price: 500},
	}
	for _, p := range variants {
		after, matched := Merge(base, p)
		assert.False(t, matched)
		assert.Len(t, after.Items, 2)
	}
}

func TestParsePending(t *testing.T) {
	p, err := ParsePending([]byte(`{"id":"42","condition":"Good","storage":"128GB","color":"Black","price":500,"image":"/p.png","title":"Pixel"}`))
	require.NoError(t, err)
	assert.Nil(t, p.Quantity)
	assert.Equal(t, 1, p.Item().Quantity)

	p, err = ParsePending([]byte(`{"id":"42","price":500,"quantity":0}`))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Item().Quantity)

	_, err = ParsePending([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedPending)

	_, err = ParsePending([]byte(`{"price":500}`))
	assert.ErrorIs(t, err, ErrMalformedPending)
}

func TestRecalculateFixesDriftedTotals(t *testing.T) {
	c := Cart{Items: []Item{blackPixel(2)}, TotalItems: 99, SubTotalPrice: 1}
	c = c.Recalculate()
	assert.Equal(t, 2, c.TotalItems)
	assert.Equal(t, 1000.0, c.SubTotalPrice)
}
