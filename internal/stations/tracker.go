package stations

// Tracker is the set of station ids reached during a session, kept in the
// order they were reached. It is owned by a single driver and is not safe for
// concurrent use.
type Tracker struct {
	seen  map[int]struct{}
	order []int
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[int]struct{})}
}

// RecordCrossing adds id and reports whether it was not already present.
func (t *Tracker) RecordCrossing(id int) bool {
	if _, ok := t.seen[id]; ok {
		return false
	}
	t.seen[id] = struct{}{}
	t.order = append(t.order, id)
	return true
}

func (t *Tracker) Has(id int) bool {
	_, ok := t.seen[id]
	return ok
}

func (t *Tracker) Len() int { return len(t.order) }

// Crossed returns a copy of the crossed ids in crossing order.
func (t *Tracker) Crossed() []int { return append([]int(nil), t.order...) }

func (t *Tracker) Reset() {
	clear(t.seen)
	t.order = t.order[:0]
}
