package model

// tombstoneMark is the reserved column sentinel for soft-deleted rows.
// It can never collide with a MemoryID because IDs are UUIDs.
const tombstoneMark = "__tombstone__"

type supersessionKind int

const (
	supersessionLive supersessionKind = iota
	supersessionForwarded
	supersessionDeleted
)

// Supersession is the tagged state of a memory's replacement pointer:
// a memory is live, superseded by another memory, or soft-deleted.
// Forward pointers form a chain that terminates in a live memory or a
// tombstone.
type Supersession struct {
	kind      supersessionKind
	successor MemoryID
}

// Live marks a memory as the terminal node of its chain.
func Live() Supersession {
	return Supersession{kind: supersessionLive}
}

// SupersededBy marks a memory as logically replaced by successor.
func SupersededBy(successor MemoryID) Supersession {
	return Supersession{kind: supersessionForwarded, successor: successor}
}

// Tombstone marks a memory as soft-deleted.
func Tombstone() Supersession {
	return Supersession{kind: supersessionDeleted}
}

func (s Supersession) IsLive() bool {
	return s.kind == supersessionLive
}

func (s Supersession) IsDeleted() bool {
	return s.kind == supersessionDeleted
}

// Successor returns the replacement pointer, if any.
func (s Supersession) Successor() (MemoryID, bool) {
	if s.kind != supersessionForwarded {
		return "", false
	}
	return s.successor, true
}

// ColumnValue returns the persisted representation: nil for a live
// memory, the successor ID for a replaced one, the tombstone sentinel
// for a deleted one.
func (s Supersession) ColumnValue() *string {
	switch s.kind {
	case supersessionForwarded:
		v := string(s.successor)
		return &v
	case supersessionDeleted:
		v := tombstoneMark
		return &v
	default:
		return nil
	}
}

// SupersessionFromColumn parses the persisted column value back into
// the tagged state.
func SupersessionFromColumn(v *string) Supersession {
	switch {
	case v == nil || *v == "":
		return Live()
	case *v == tombstoneMark:
		return Tombstone()
	default:
		return SupersededBy(MemoryID(*v))
	}
}
