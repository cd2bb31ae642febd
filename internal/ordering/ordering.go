// Package ordering maintains the dense 1-based position sequence over the
// lines of one invoice. It is pure position arithmetic; persistence and
// locking stay with the caller, which must apply a whole result atomically.
package ordering

import (
	"errors"
	"sort"

	"github.com/bwmarrin/snowflake"
)

// Positioned is any record held in a dense 1-based sequence.
type Positioned interface {
	SequenceID() snowflake.ID
	SequencePos() int
	SetSequencePos(int)
}

var (
	// ErrUnknownID is returned when an operation names an ID that is not in
	// the sequence.
	ErrUnknownID = errors.New("unknown_sequence_id")
	// ErrOrderMismatch is returned when a reorder request is not a full
	// permutation of the current sequence.
	ErrOrderMismatch = errors.New("order_mismatch")
)

// Sort orders items by their stored position, in place.
func Sort[T Positioned](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].SequencePos() < items[j].SequencePos()
	})
}

// Renumber assigns dense positions 1..N following the current slice order.
func Renumber[T Positioned](items []T) {
	for i, item := range items {
		item.SetSequencePos(i + 1)
	}
}

// Append places item at the end of the sequence.
func Append[T Positioned](items []T, item T) {
	item.SetSequencePos(len(items) + 1)
}

// InsertAt places item at the given 1-based position, shifting subsequent
// items down. Positions outside [1, N+1] append. Returns the new sequence.
func InsertAt[T Positioned](items []T, item T, pos int) []T {
	if pos < 1 || pos > len(items)+1 {
		pos = len(items) + 1
	}
	out := make([]T, 0, len(items)+1)
	out = append(out, items[:pos-1]...)
	out = append(out, item)
	out = append(out, items[pos-1:]...)
	Renumber(out)
	return out
}

// Remove drops the item with the given ID and closes the position gap.
// Removing the last remaining item yields a valid empty sequence.
func Remove[T Positioned](items []T, id snowflake.ID) ([]T, error) {
	idx := -1
	for i, item := range items {
		if item.SequenceID() == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return items, ErrUnknownID
	}
	out := append(items[:idx:idx], items[idx+1:]...)
	Renumber(out)
	return out, nil
}

// Apply reorders the sequence to follow order, which must be a full
// permutation of the current IDs, and reassigns positions 1..N.
func Apply[T Positioned](items []T, order []snowflake.ID) ([]T, error) {
	if len(order) != len(items) {
		return nil, ErrOrderMismatch
	}
	byID := make(map[snowflake.ID]T, len(items))
	for _, item := range items {
		byID[item.SequenceID()] = item
	}
	out := make([]T, 0, len(items))
	for _, id := range order {
		item, ok := byID[id]
		if !ok {
			return nil, ErrOrderMismatch
		}
		delete(byID, id)
		out = append(out, item)
	}
	Renumber(out)
	return out, nil
}

// Validate reports whether positions form exactly {1..N}.
func Validate[T Positioned](items []T) bool {
	seen := make(map[int]bool, len(items))
	for _, item := range items {
		p := item.SequencePos()
		if p < 1 || p > len(items) || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
