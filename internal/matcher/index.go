package matcher

import (
	"fmt"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// SelectionPair is one resolved mapping between two venues' selection ids.
type SelectionPair struct {
	A string
	B string
}

// SelectionIndex is a bidirectional selection mapping scoped to one matched
// market. The forward direction is a function; the reverse direction may hold
// several A ids when collisions were allowed.
type SelectionIndex struct {
	forward    map[string]string
	reverse    map[string][]string
	order      []string
	collisions int
}

func newSelectionIndex() *SelectionIndex {
	return &SelectionIndex{
		forward: make(map[string]string),
		reverse: make(map[string][]string),
	}
}

func (x *SelectionIndex) add(a, b string, policy CollisionPolicy) error {
	if _, dup := x.forward[a]; dup {
		return nil
	}
	if len(x.reverse[b]) > 0 {
		x.collisions++
		if policy == CollisionReject {
			return fmt.Errorf("matcher: %s -> %s: %w", a, b, domain.ErrSelectionCollision)
		}
	}
	x.forward[a] = b
	x.reverse[b] = append(x.reverse[b], a)
	x.order = append(x.order, a)
	return nil
}

// Lookup returns the B selection mapped from a.
func (x *SelectionIndex) Lookup(a string) (string, bool) {
	b, ok := x.forward[a]
	return b, ok
}

// Reverse returns every A selection mapped onto b, in insertion order.
func (x *SelectionIndex) Reverse(b string) []string {
	return x.reverse[b]
}

// Pairs returns the mappings in the order the A selections were matched.
func (x *SelectionIndex) Pairs() []SelectionPair {
	out := make([]SelectionPair, 0, len(x.order))
	for _, a := range x.order {
		out = append(out, SelectionPair{A: a, B: x.forward[a]})
	}
	return out
}

// Len returns the number of mappings.
func (x *SelectionIndex) Len() int {
	return len(x.order)
}

// Collisions returns how many mappings targeted an already-claimed selection.
func (x *SelectionIndex) Collisions() int {
	return x.collisions
}
