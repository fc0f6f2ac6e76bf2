package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// EventKind tags the variant of an Event.
type EventKind uint8

const (
	EventProfileCreated EventKind = iota + 1
	EventRatingSubmitted
	EventReputationStaked
	// EventReputationUnstaked is a recognized variant that no operation emits yet.
	EventReputationUnstaked
	EventProfileDeactivated
)

var eventKindNames = map[EventKind]string{
	EventProfileCreated:     "ProfileCreated",
	EventRatingSubmitted:    "RatingSubmitted",
	EventReputationStaked:   "ReputationStaked",
	EventReputationUnstaked: "ReputationUnstaked",
	EventProfileDeactivated: "ProfileDeactivated",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Valid reports whether k is a recognized variant.
func (k EventKind) Valid() bool {
	_, ok := eventKindNames[k]
	return ok
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for k, name := range eventKindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind: %q", s)
}

// Event is the record a successful operation yields. Kind selects which of
// the remaining fields are meaningful:
//
//	ProfileCreated, ProfileDeactivated: Who
//	RatingSubmitted:                    From, To, Score
//	ReputationStaked/Unstaked:          Who, Amount
type Event struct {
	Kind   EventKind
	Who    AccountID
	From   AccountID
	To     AccountID
	Score  uint8
	Amount uint256.Int
}

func (e Event) String() string {
	switch e.Kind {
	case EventProfileCreated, EventProfileDeactivated:
		return fmt.Sprintf("%s{who: %s}", e.Kind, e.Who)
	case EventRatingSubmitted:
		return fmt.Sprintf("%s{from: %s, to: %s, score: %d}", e.Kind, e.From, e.To, e.Score)
	case EventReputationStaked, EventReputationUnstaked:
		return fmt.Sprintf("%s{who: %s, amount: %s}", e.Kind, e.Who, e.Amount.ToBig())
	default:
		return e.Kind.String()
	}
}

// EventRecord is an Event as kept in the journal.
type EventRecord struct {
	Seq       uint64 // assigned by the store, starts at 1
	ID        string
	Timestamp uint64
	Event     Event
}
