package alerts

import (
	"time"

	"metro-simulator/internal/route"
)

type Category string

const (
	Info    Category = "info"
	Warning Category = "warning"
	Danger  Category = "danger"
	None    Category = "none"
)

// CategoryOf maps an operator severity onto an alert category.
func CategoryOf(s route.Severity) Category {
	switch s {
	case route.SeverityInfo:
		return Info
	case route.SeverityWarning:
		return Warning
	case route.SeverityDanger:
		return Danger
	default:
		return None
	}
}

// Kind identifies the rule that produced an alert.
type Kind string

const (
	KindFixed   Kind = "fixed"
	KindCurve   Kind = "curve"
	KindStation Kind = "station"
	KindSpeed   Kind = "speed"
)

type Alert struct {
	Category Category  `json:"type"`
	Kind     Kind      `json:"kind"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
	Index    int       `json:"index"`
}

// History keeps every emitted alert, most recent first.
type History struct {
	items []Alert
}

// Prepend puts a batch from one evaluation in front of the history, keeping
// the batch's own order.
func (h *History) Prepend(batch []Alert) {
	if len(batch) == 0 {
		return
	}
	items := make([]Alert, 0, len(batch)+len(h.items))
	items = append(items, batch...)
	h.items = append(items, h.items...)
}

func (h *History) All() []Alert { return append([]Alert(nil), h.items...) }

func (h *History) Len() int { return len(h.items) }

func (h *History) Reset() { h.items = nil }
