package dispatch

// Field names one of the three scan inputs, in scan order.
type Field string

const (
	FieldItem  Field = "item"
	FieldLabel Field = "label"
	FieldSKU   Field = "sku"
)

// Fields lists the scan inputs in the order an operator scans them.
var Fields = []Field{FieldItem, FieldLabel, FieldSKU}

func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

type Status string

const (
	StatusEmpty    Status = "empty"
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusError    Status = "error"
)

// FieldState is one scan input. Message holds the verification notice when
// verified and the failure reason when in error.
type FieldState struct {
	Status  Status `json:"status"`
	Value   string `json:"value"`
	Message string `json:"message,omitempty"`
}

type EventKind int

const (
	EventEntered EventKind = iota
	EventLookupSucceeded
	EventLookupFailed
	EventCleared
)

type Event struct {
	Kind    EventKind
	Value   string
	Message string
}

// Transition is the whole per-field state machine. Lookup results only land
// on a pending field; anything else leaves the state alone.
func Transition(s FieldState, e Event) FieldState {
	switch e.Kind {
	case EventEntered:
		return FieldState{Status: StatusPending, Value: e.Value}
	case EventLookupSucceeded:
		if s.Status != StatusPending {
			return s
		}
		return FieldState{Status: StatusVerified, Value: s.Value, Message: e.Message}
	case EventLookupFailed:
		if s.Status != StatusPending {
			return s
		}
		return FieldState{Status: StatusError, Value: s.Value, Message: e.Message}
	case EventCleared:
		return FieldState{Status: StatusEmpty}
	}
	return s
}
