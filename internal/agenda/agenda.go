// Package agenda owns the TOP numbering scheme. A TOP number is not a plain
// sequence value: the number itself encodes visibility and the two fixed
// structural items. All reserved values and band boundaries are defined here
// and nowhere else; no other component may assign a TOP number directly.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Reserved numbers and band boundaries.
//
//	0        fixed opening item (election of chair and secretary)
//	1..98    ordinary public items
//	99       fixed miscellaneous item, rendered last among public items
//	101..    confidential items
//	999      control sentinel, never rendered anywhere
const (
	NumberOpening       = 0
	PublicFloor         = 1
	PublicCeil          = 98
	NumberMiscellaneous = 99
	ConfidentialFloor   = 101
	NumberControl       = 999
)

var ErrBandExhausted = errors.New("public agenda band exhausted")

// Reserved reports whether n is one of the fixed or sentinel numbers that
// the allocator must never hand out.
func Reserved(n int) bool {
	return n == NumberOpening || n == NumberMiscellaneous || n == NumberControl
}

// NumberConfidential derives visibility from the number alone. The mapping
// is enforced here, not stored independently.
func NumberConfidential(n int) bool {
	return n >= ConfidentialFloor && n != NumberControl
}

// ValidNumber checks that a number sits in the band matching the claimed
// visibility.
func ValidNumber(n int, confidential bool) bool {
	if Reserved(n) {
		return !confidential
	}
	if confidential {
		return n >= ConfidentialFloor
	}
	return n >= PublicFloor && n <= PublicCeil
}

// Allocator hands out the next number in a band atomically. Implementations
// must be monotonic per meeting and band: a number freed by deletion is
// never reissued, and two concurrent callers never receive the same value.
type Allocator interface {
	AllocateTopNumber(ctx context.Context, meetingID string, confidential bool, floor int) (int, error)
}

// Engine is the only sanctioned producer of TOP numbers.
type Engine struct {
	alloc Allocator
}

func NewEngine(alloc Allocator) *Engine {
	return &Engine{alloc: alloc}
}

// NextNumber allocates the next free number in the requested band. The
// public band is capped below the miscellaneous item; the confidential band
// is open-ended.
func (e *Engine) NextNumber(ctx context.Context, meetingID string, confidential bool) (int, error) {
	floor := PublicFloor
	if confidential {
		floor = ConfidentialFloor
	}
	n, err := e.alloc.AllocateTopNumber(ctx, meetingID, confidential, floor)
	if err != nil {
		return 0, fmt.Errorf("allocate top number: %w", err)
	}
	if !confidential && n >= NumberMiscellaneous {
		return 0, ErrBandExhausted
	}
	return n, nil
}

// Entry is the slice of an agenda item the ordering needs.
type Entry struct {
	TopNumber    int
	Confidential bool
	Priority     float64
}

// Ranked pairs an index into the caller's item slice with its entry, so the
// ordering can be applied to any backing representation.
type Ranked struct {
	Index int
	Entry Entry
}

// VisibleOrdering computes the render order for a viewer. Confidential
// items are removed before anything else happens when the viewer is not
// cleared, so an uncleared viewer can not even observe their count. The
// control sentinel never appears. The remaining items sort: opening first,
// miscellaneous last among public items, confidential after all public
// items, and within each group by descending priority with the TOP number
// as the stable tie-break.
func VisibleOrdering(entries []Entry, seeConfidential bool) []Ranked {
	visible := make([]Ranked, 0, len(entries))
	for i, entry := range entries {
		if entry.TopNumber == NumberControl {
			continue
		}
		if entry.Confidential && !seeConfidential {
			continue
		}
		visible = append(visible, Ranked{Index: i, Entry: entry})
	}

	sort.SliceStable(visible, func(i, j int) bool {
		left, right := visible[i].Entry, visible[j].Entry
		if lr, rr := groupRank(left), groupRank(right); lr != rr {
			return lr < rr
		}
		if left.Priority != right.Priority {
			return left.Priority > right.Priority
		}
		return left.TopNumber < right.TopNumber
	})
	return visible
}

func groupRank(entry Entry) int {
	switch {
	case entry.TopNumber == NumberOpening:
		return 0
	case entry.Confidential:
		return 3
	case entry.TopNumber == NumberMiscellaneous:
		return 2
	default:
		return 1
	}
}
