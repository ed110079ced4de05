// Package activity records the card activity trail: field diffs between card
// snapshots and append-only records fanned out to everyone a card is visible
// to.
package activity

// Action is the kind of change an activity record describes.
type Action string

const (
	ActionCreated      Action = "created"
	ActionEdit         Action = "edit"
	ActionPayment      Action = "payment"
	ActionShare        Action = "share"
	ActionArchive      Action = "archive"
	ActionRestore      Action = "restore"
	ActionMakePersonal Action = "make_personal"
)

var knownActions = map[Action]bool{
	ActionCreated:      true,
	ActionEdit:         true,
	ActionPayment:      true,
	ActionShare:        true,
	ActionArchive:      true,
	ActionRestore:      true,
	ActionMakePersonal: true,
}

// ParseAction validates an action name received from a caller.
func ParseAction(s string) (Action, bool) {
	a := Action(s)
	return a, knownActions[a]
}

// Card type tags stored on every record.
const (
	CardTypeGiftCard   = "gift_card"
	CardTypeSharedCard = "shared_card"
)
