package agenda

import (
	"context"
	"errors"
	"testing"
)

type fakeAllocator struct {
	next map[string]int
}

func (f *fakeAllocator) AllocateTopNumber(_ context.Context, meetingID string, confidential bool, floor int) (int, error) {
	if f.next == nil {
		f.next = make(map[string]int)
	}
	key := meetingID
	if confidential {
		key += ":confidential"
	}
	n, ok := f.next[key]
	if !ok {
		n = floor
	}
	f.next[key] = n + 1
	return n, nil
}

func TestNextNumberBands(t *testing.T) {
	engine := NewEngine(&fakeAllocator{})
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		got, err := engine.NextNumber(ctx, "m1", false)
		if err != nil {
			t.Fatalf("NextNumber() error = %v", err)
		}
		if got != want {
			t.Fatalf("public NextNumber() = %d, want %d", got, want)
		}
	}

	got, err := engine.NextNumber(ctx, "m1", true)
	if err != nil {
		t.Fatalf("NextNumber(confidential) error = %v", err)
	}
	if got != ConfidentialFloor {
		t.Fatalf("confidential NextNumber() = %d, want %d", got, ConfidentialFloor)
	}
	got, err = engine.NextNumber(ctx, "m1", true)
	if err != nil {
		t.Fatalf("NextNumber(confidential) error = %v", err)
	}
	if got != ConfidentialFloor+1 {
		t.Fatalf("confidential NextNumber() = %d, want %d", got, ConfidentialFloor+1)
	}

	// Bands are independent per meeting.
	got, err = engine.NextNumber(ctx, "m2", false)
	if err != nil {
		t.Fatalf("NextNumber(m2) error = %v", err)
	}
	if got != 1 {
		t.Fatalf("NextNumber(m2) = %d, want 1", got)
	}
}

func TestNextNumberNeverAllocatesReserved(t *testing.T) {
	alloc := &fakeAllocator{next: map[string]int{"m1": NumberMiscellaneous}}
	engine := NewEngine(alloc)

	_, err := engine.NextNumber(context.Background(), "m1", false)
	if !errors.Is(err, ErrBandExhausted) {
		t.Fatalf("expected ErrBandExhausted at number %d, got %v", NumberMiscellaneous, err)
	}
}

func TestValidNumber(t *testing.T) {
	cases := []struct {
		n            int
		confidential bool
		valid        bool
	}{
		{n: NumberOpening, confidential: false, valid: true},
		{n: NumberOpening, confidential: true, valid: false},
		{n: 1, confidential: false, valid: true},
		{n: 98, confidential: false, valid: true},
		{n: 100, confidential: false, valid: false},
		{n: NumberMiscellaneous, confidential: false, valid: true},
		{n: 101, confidential: true, valid: true},
		{n: 101, confidential: false, valid: false},
		{n: 250, confidential: true, valid: true},
		{n: NumberControl, confidential: false, valid: true},
		{n: NumberControl, confidential: true, valid: false},
	}
	for _, tc := range cases {
		if got := ValidNumber(tc.n, tc.confidential); got != tc.valid {
			t.Fatalf("ValidNumber(%d, %v) = %v, want %v", tc.n, tc.confidential, got, tc.valid)
		}
	}
}

func TestNumberConfidential(t *testing.T) {
	cases := []struct {
		n    int
		want bool
	}{
		{n: NumberOpening, want: false},
		{n: 1, want: false},
		{n: 98, want: false},
		{n: NumberMiscellaneous, want: false},
		{n: ConfidentialFloor, want: true},
		{n: 250, want: true},
		{n: NumberControl, want: false},
	}
	for _, tc := range cases {
		if got := NumberConfidential(tc.n); got != tc.want {
			t.Fatalf("NumberConfidential(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestVisibleOrderingFiltersConfidentialCompletely(t *testing.T) {
	entries := []Entry{
		{TopNumber: 101, Confidential: true, Priority: 9},
		{TopNumber: 1, Priority: 2},
		{TopNumber: 102, Confidential: true, Priority: 1},
		{TopNumber: NumberOpening},
	}

	visible := VisibleOrdering(entries, false)
	if len(visible) != 2 {
		t.Fatalf("uncleared viewer sees %d items, want 2", len(visible))
	}
	for _, ranked := range visible {
		if ranked.Entry.Confidential {
			t.Fatalf("confidential item %d leaked to uncleared viewer", ranked.Entry.TopNumber)
		}
	}
}

func TestVisibleOrderingOrder(t *testing.T) {
	entries := []Entry{
		{TopNumber: NumberMiscellaneous, Priority: 99},
		{TopNumber: 3, Priority: 5},
		{TopNumber: 102, Confidential: true, Priority: 8},
		{TopNumber: 1, Priority: 5},
		{TopNumber: NumberControl},
		{TopNumber: 2, Priority: 7},
		{TopNumber: NumberOpening, Priority: 0},
		{TopNumber: 101, Confidential: true, Priority: 2},
	}

	visible := VisibleOrdering(entries, true)
	got := make([]int, 0, len(visible))
	for _, ranked := range visible {
		got = append(got, ranked.Entry.TopNumber)
	}

	// Opening first; public by priority desc with TOP as tie-break;
	// miscellaneous closes the public block; confidential items follow,
	// again by priority; the control item is gone.
	want := []int{NumberOpening, 2, 1, 3, NumberMiscellaneous, 102, 101}
	if len(got) != len(want) {
		t.Fatalf("ordering length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ordering = %v, want %v", got, want)
		}
	}
}

func TestVisibleOrderingIsStable(t *testing.T) {
	entries := []Entry{
		{TopNumber: 5, Priority: 3},
		{TopNumber: 4, Priority: 3},
	}
	visible := VisibleOrdering(entries, true)
	if visible[0].Entry.TopNumber != 4 || visible[1].Entry.TopNumber != 5 {
		t.Fatalf("equal-priority items must order by TOP number, got %v then %v",
			visible[0].Entry.TopNumber, visible[1].Entry.TopNumber)
	}
}
