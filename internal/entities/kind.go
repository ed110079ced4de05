package entities

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// Kind is one addressable entity. The set is closed: every value is declared
// below and Lookup is the only way to turn a request name into a Kind.
type Kind int

const (
	KindGiftCard Kind = iota + 1
	KindTransaction
	KindGiftCardType
	KindArchivedCard
	KindSharedCard
	KindUserCardType
	KindCardActivityLog
	KindArchiveRequest
	KindGroup
	KindNotification
	KindUser
)

var kindNames = map[Kind]string{
	KindGiftCard:        "GiftCard",
	KindTransaction:     "Transaction",
	KindGiftCardType:    "GiftCardType",
	KindArchivedCard:    "ArchivedCard",
	KindSharedCard:      "SharedCard",
	KindUserCardType:    "UserCardType",
	KindCardActivityLog: "CardActivityLog",
	KindArchiveRequest:  "ArchiveRequest",
	KindGroup:           "Group",
	KindNotification:    "Notification",
	KindUser:            "User",
}

var kindsByName = func() map[string]Kind {
	out := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		out[name] = k
	}
	return out
}()

// Kinds lists every entity in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindGiftCard; k <= KindUser; k++ {
		out = append(out, k)
	}
	return out
}

// Lookup resolves a request name. Names are case sensitive.
func Lookup(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Kind(?)"
}

// Table is the storage table backing the kind: the snake_case plural of its
// name, e.g. GiftCardType -> gift_card_types.
func (k Kind) Table() string {
	return inflection.Plural(snakeCase(k.String()))
}

// IsCard reports whether rows carry card money and date columns.
func (k Kind) IsCard() bool {
	return k == KindGiftCard || k == KindSharedCard
}

// Owned reports whether create stamps the actor as creator and owner.
func (k Kind) Owned() bool {
	return k == KindGiftCard
}

// Audited reports whether mutations produce activity records.
func (k Kind) Audited() bool {
	return k.IsCard()
}

// CardTypeTag is the record kind tag stored on activity records.
func (k Kind) CardTypeTag() string {
	switch k {
	case KindGiftCard:
		return "gift_card"
	case KindSharedCard:
		return "shared_card"
	default:
		return ""
	}
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
