// Package pagination implements keyset pagination over id-ordered
// collections. Every list endpoint pages through the same Cursor/Window
// machinery; the store executes the rendered window inside one snapshot
// transaction so total and has_more never disagree.
package pagination

import (
	"fmt"
	"strings"
)

// Dir is the traversal direction of a page request.
type Dir string

const (
	Forward  Dir = "f"
	Backward Dir = "b"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Cursor is the wire-level page request: from/to ids, direction, limit.
type Cursor struct {
	Dir   Dir
	From  string
	To    string
	Limit int
}

// ParseDir maps the query parameter value onto a Dir, defaulting forward.
func ParseDir(raw string) (Dir, error) {
	switch strings.TrimSpace(raw) {
	case "", "f":
		return Forward, nil
	case "b":
		return Backward, nil
	default:
		return Forward, fmt.Errorf("dir must be f or b")
	}
}

// ClampLimit forces limit into [1, MaxLimit], defaulting when unset.
func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Bound is one typed end of a pagination window: negative infinity,
// positive infinity, or a concrete id. Infinities render to the store's
// sentinel ids only at the SQL boundary, never as magic strings in callers.
type Bound struct {
	value    string
	infinite bool
	positive bool
}

func NegInf() Bound             { return Bound{infinite: true, positive: false} }
func PosInf() Bound             { return Bound{infinite: true, positive: true} }
func Value(id string) Bound     { return Bound{value: id} }
func (b Bound) IsNegInf() bool  { return b.infinite && !b.positive }
func (b Bound) IsPosInf() bool  { return b.infinite && b.positive }
func (b Bound) IsValue() bool   { return !b.infinite }
func (b Bound) RawValue() string { return b.value }

// Render resolves the bound against the collection's sentinel ids.
func (b Bound) Render(min, max string) string {
	switch {
	case b.IsNegInf():
		return min
	case b.IsPosInf():
		return max
	default:
		return b.value
	}
}

// Window is a closed-open (exclusive both ends) id range plus fetch order.
// Ascending follows the traversal direction so the store always reads the
// page nearest the cursor first.
type Window struct {
	Lower     Bound
	Upper     Bound
	Ascending bool
	Limit     int
}

// Window derives the fetch window from the cursor. For forward traversal
// the cursor's from is the exclusive lower bound; backward swaps the roles
// and fetches descending.
func (c Cursor) Window() Window {
	w := Window{
		Lower:     NegInf(),
		Upper:     PosInf(),
		Ascending: c.Dir != Backward,
		Limit:     ClampLimit(c.Limit),
	}
	lower, upper := c.From, c.To
	if c.Dir == Backward {
		lower, upper = c.To, c.From
	}
	if lower != "" {
		w.Lower = Value(lower)
	}
	if upper != "" {
		w.Upper = Value(upper)
	}
	return w
}

// Page is the uniform list response envelope.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
}

// BuildPage finalizes a page from a limit+1 fetch: detects has_more,
// truncates, and reverses backward pages so items are always in ascending
// id order regardless of traversal direction.
func BuildPage[T any](fetched []T, total int, w Window) Page[T] {
	hasMore := len(fetched) > w.Limit
	if hasMore {
		fetched = fetched[:w.Limit]
	}
	if !w.Ascending {
		for i, j := 0, len(fetched)-1; i < j; i, j = i+1, j-1 {
			fetched[i], fetched[j] = fetched[j], fetched[i]
		}
	}
	if fetched == nil {
		fetched = []T{}
	}
	return Page[T]{Items: fetched, Total: total, HasMore: hasMore}
}
