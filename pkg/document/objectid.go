package document

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ObjectID is the 12-byte identifier, rendered as 24 hex digits.
type ObjectID = primitive.ObjectID

// NilObjectID is the zero identifier.
var NilObjectID = primitive.NilObjectID

// NewObjectID generates a new, globally unique identifier.
func NewObjectID() ObjectID { return primitive.NewObjectID() }

// ObjectIDFromHex builds an identifier from its 24-hex-digit representation.
// The same string always yields the same identifier.
func ObjectIDFromHex(s string) (ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return NilObjectID, fmt.Errorf("invalid object id %q: %w", s, err)
	}
	return id, nil
}

// MustObjectID is ObjectIDFromHex for literals known to be valid.
func MustObjectID(s string) ObjectID {
	id, err := ObjectIDFromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}
