package models

// IdentityKind tells how an order line can be recognised across requests.
type IdentityKind int

const (
	// IdentityNone is a line with neither a database id nor a client id.
	IdentityNone IdentityKind = iota
	// IdentityPersisted is a line stored in the database.
	IdentityPersisted
	// IdentityClient is an unsaved line known only by its client correlation id.
	IdentityClient
)

// Identity is the comparable identity of an order line. Two lines holding the
// same values are not the same line unless their identities match.
type Identity struct {
	Kind     IdentityKind
	ID       int64
	ClientID string
}

// IdentityOf returns the identity of l. A persisted line keeps its client id
// so it can still be matched against an unsaved copy of itself.
func IdentityOf(l *OrderLine) Identity {
	switch {
	case l.ID != nil:
		return Identity{Kind: IdentityPersisted, ID: *l.ID, ClientID: l.ClientID}
	case l.ClientID != "":
		return Identity{Kind: IdentityClient, ClientID: l.ClientID}
	default:
		return Identity{Kind: IdentityNone}
	}
}

// Matches compares by database id when both sides are persisted and by client
// id otherwise. An empty client id never matches.
func (a Identity) Matches(b Identity) bool {
	if a.Kind == IdentityPersisted && b.Kind == IdentityPersisted {
		return a.ID == b.ID
	}
	return a.ClientID != "" && a.ClientID == b.ClientID
}

// SameLine reports whether a and b denote the same order line.
func SameLine(a, b *OrderLine) bool {
	if a == nil || b == nil {
		return false
	}
	return IdentityOf(a).Matches(IdentityOf(b))
}
