package event

// Class is the replacement class of an event kind.
type Class int

const (
	// Regular events are kept forever; every copy is history.
	Regular Class = iota
	// Replaceable events keep only the newest copy per (kind, pubkey).
	Replaceable
	// Addressable events keep only the newest copy per (kind, pubkey, d-tag).
	Addressable
	// Ephemeral events are relayed but never stored.
	Ephemeral
)

// Well-known kinds the store treats specially.
const (
	KindProfileMetadata        = 0
	KindTextNote               = 1
	KindContactList            = 3
	KindEncryptedDirectMessage = 4
)

func (c Class) String() string {
	switch c {
	case Regular:
		return "regular"
	case Replaceable:
		return "replaceable"
	case Addressable:
		return "addressable"
	case Ephemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

// Classify maps a kind number onto its NIP-01 class.
// Kinds outside every assigned range are regular.
func Classify(kind int) Class {
	switch {
	case kind == KindProfileMetadata || kind == KindContactList:
		return Replaceable
	case 10000 <= kind && kind < 20000:
		return Replaceable
	case 20000 <= kind && kind < 30000:
		return Ephemeral
	case 30000 <= kind && kind < 40000:
		return Addressable
	default:
		return Regular
	}
}

func IsReplaceable(kind int) bool { return Classify(kind) == Replaceable }
func IsAddressable(kind int) bool { return Classify(kind) == Addressable }
func IsEphemeral(kind int) bool   { return Classify(kind) == Ephemeral }

// IsReplaceableClass reports whether at most one copy per key may survive,
// i.e. the kind is replaceable or addressable.
func IsReplaceableClass(kind int) bool {
	c := Classify(kind)
	return c == Replaceable || c == Addressable
}
