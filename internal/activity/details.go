package activity

import (
	"fmt"
	"math"
)

// Details is the action-specific payload of a record. Each action has its
// own variant; Diff is the only constructor.
type Details interface {
	Action() Action
}

// Change describes one edited field.
type Change struct {
	Field       string `json:"field"`
	Before      any    `json:"before"`
	After       any    `json:"after"`
	Description string `json:"description"`
}

type CreatedDetails struct {
	Name    any `json:"name"`
	Type    any `json:"type"`
	Balance any `json:"balance"`
	Vendor  any `json:"vendor"`
}

// EditDetails lists changed fields in snapshot field order. An empty list is
// a no-op edit.
type EditDetails struct {
	Changes []Change `json:"changes"`
}

type PaymentDetails struct {
	Amount          float64 `json:"amount"`
	PreviousBalance any     `json:"previous_balance"`
	NewBalance      any     `json:"new_balance"`
}

type ShareDetails struct {
	SharedWith []string `json:"shared_with"`
	GroupName  any      `json:"group_name,omitempty"`
}

type ArchiveDetails struct {
	Reason  any `json:"reason,omitempty"`
	Balance any `json:"balance"`
}

type RestoreDetails struct {
	Name    any `json:"name"`
	Balance any `json:"balance"`
}

type MakePersonalDetails struct {
	Name               any      `json:"name"`
	PreviousSharedWith []string `json:"previous_shared_with"`
}

func (CreatedDetails) Action() Action      { return ActionCreated }
func (EditDetails) Action() Action         { return ActionEdit }
func (PaymentDetails) Action() Action      { return ActionPayment }
func (ShareDetails) Action() Action        { return ActionShare }
func (ArchiveDetails) Action() Action      { return ActionArchive }
func (RestoreDetails) Action() Action      { return ActionRestore }
func (MakePersonalDetails) Action() Action { return ActionMakePersonal }

// Diff builds the details for action from the before and after card rows.
// Before may be nil. An edit without a before row has no details. Recipients
// feed the share summary.
func Diff(action Action, before, after map[string]any, recipients []string) (Details, error) {
	b, a := SnapshotOf(before), SnapshotOf(after)
	switch action {
	case ActionCreated:
		return CreatedDetails{Name: a["name"], Type: a["type"], Balance: a["balance"], Vendor: a["vendor"]}, nil
	case ActionEdit:
		if b == nil {
			return nil, nil
		}
		return EditDetails{Changes: Changes(b, a)}, nil
	case ActionPayment:
		return paymentDetails(b, a), nil
	case ActionShare:
		return ShareDetails{SharedWith: nonNil(recipients), GroupName: after["group_name"]}, nil
	case ActionArchive:
		reason := after["archive_reason"]
		if reason == nil {
			reason = after["reason"]
		}
		return ArchiveDetails{Reason: reason, Balance: a["balance"]}, nil
	case ActionRestore:
		return RestoreDetails{Name: a["name"], Balance: a["balance"]}, nil
	case ActionMakePersonal:
		var previous []string
		if before != nil {
			previous = stringList(before["shared_with"])
		}
		return MakePersonalDetails{Name: a["name"], PreviousSharedWith: nonNil(previous)}, nil
	default:
		return nil, fmt.Errorf("unsupported action %q", action)
	}
}

// Changes compares two snapshots field by field.
func Changes(before, after Snapshot) []Change {
	changes := []Change{}
	for _, f := range snapshotFields {
		bv, av := before[f.label], after[f.label]
		bn, an := normalize(f.kind, bv), normalize(f.kind, av)
		if bn == an {
			continue
		}
		changes = append(changes, Change{
			Field:       f.label,
			Before:      emptyToNil(bn, bv),
			After:       emptyToNil(an, av),
			Description: describe(f, bv, av, bn, an),
		})
	}
	return changes
}

func describe(f snapshotField, bv, av any, bn, an string) string {
	switch {
	case bn == empty:
		return fmt.Sprintf("%s set to %s", f.display, displayValue(f.kind, av))
	case an == empty:
		return fmt.Sprintf("%s cleared", f.display)
	default:
		return fmt.Sprintf("%s changed from %s to %s", f.display, displayValue(f.kind, bv), displayValue(f.kind, av))
	}
}

func paymentDetails(before, after Snapshot) PaymentDetails {
	d := PaymentDetails{NewBalance: after["balance"]}
	if before == nil {
		return d
	}
	d.PreviousBalance = before["balance"]
	prev, okPrev := amountOf(before["balance"])
	next, okNext := amountOf(after["balance"])
	if okPrev && okNext {
		d.Amount = math.Round((prev-next)*100) / 100
	}
	return d
}

func emptyToNil(normalized string, v any) any {
	if normalized == empty {
		return nil
	}
	return v
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
