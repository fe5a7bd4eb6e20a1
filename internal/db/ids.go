package db

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/skshohagmiah/flindoc/pkg/document"
)

// IDGenerator produces identifiers for documents inserted without an _id.
type IDGenerator interface {
	NewID() document.Value
}

// ObjectIDGenerator generates 12-byte ObjectIDs. It is the default.
type ObjectIDGenerator struct{}

func (ObjectIDGenerator) NewID() document.Value { return document.OID(document.NewObjectID()) }

// UUIDGenerator generates random UUID strings.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() document.Value { return document.String(uuid.NewString()) }

// Identifier strategies accepted by IDGeneratorFor.
const (
	IDStrategyObjectID = "objectid"
	IDStrategyUUID     = "uuid"
)

// IDGeneratorFor returns the generator for a configured strategy name.
func IDGeneratorFor(strategy string) (IDGenerator, error) {
	switch strategy {
	case "", IDStrategyObjectID:
		return ObjectIDGenerator{}, nil
	case IDStrategyUUID:
		return UUIDGenerator{}, nil
	}
	return nil, fmt.Errorf("unknown id strategy %q", strategy)
}
