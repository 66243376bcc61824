// ABOUTME: UserRef tagged union for sender/recipient references on the wire
// ABOUTME: A reference is a bare id, an embedded partial record, or an embedded full record

package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RefKind tags the shape a user reference arrived in.
type RefKind int

const (
	// RefNone is a missing or null reference.
	RefNone RefKind = iota
	// RefID is a bare identifier.
	RefID
	// RefEmbeddedPartial is an embedded object without a first name.
	RefEmbeddedPartial
	// RefEmbeddedFull is an embedded object that carries a first name and can
	// be displayed without a lookup.
	RefEmbeddedFull
)

func (k RefKind) String() string {
	switch k {
	case RefNone:
		return "none"
	case RefID:
		return "id"
	case RefEmbeddedPartial:
		return "embedded_partial"
	case RefEmbeddedFull:
		return "embedded_full"
	default:
		return fmt.Sprintf("RefKind(%d)", int(k))
	}
}

// UserRef references a user by id or by an embedded record.
type UserRef struct {
	Kind RefKind
	ID   string
	User *RawUser // set for the embedded kinds
}

// IDRef builds a bare-id reference. An empty id yields a RefNone reference.
func IDRef(id string) UserRef {
	if id == "" {
		return UserRef{}
	}
	return UserRef{Kind: RefID, ID: id}
}

// EmbeddedRef builds a reference from an embedded record, classifying it as
// full when it carries a first name.
func EmbeddedRef(u RawUser) UserRef {
	kind := RefEmbeddedPartial
	if u.FirstName != "" {
		kind = RefEmbeddedFull
	}
	return UserRef{Kind: kind, ID: u.ID, User: &u}
}

// IsZero reports whether the reference is missing.
func (r UserRef) IsZero() bool {
	return r.Kind == RefNone
}

// UnmarshalJSON accepts null, a string id, an object, or any other scalar
// (stringified, the way a numeric id would be).
func (r *UserRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = UserRef{}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return fmt.Errorf("decoding user id: %w", err)
		}
		*r = IDRef(id)
	case '{':
		var u RawUser
		if err := json.Unmarshal(trimmed, &u); err != nil {
			return fmt.Errorf("decoding embedded user: %w", err)
		}
		*r = EmbeddedRef(u)
	default:
		*r = IDRef(string(trimmed))
	}
	return nil
}

// MarshalJSON writes the reference back in the shape it arrived in.
func (r UserRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefNone:
		return []byte("null"), nil
	case RefID:
		return json.Marshal(r.ID)
	default:
		if r.User == nil {
			return json.Marshal(r.ID)
		}
		return json.Marshal(r.User)
	}
}
