package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/skshohagmiah/flindoc/internal/dberr"
	"github.com/skshohagmiah/flindoc/pkg/document"
)

// Request bodies. Documents travel as relaxed extended JSON so that key order
// and ObjectIDs survive the trip.

type InsertBody struct {
	Documents []*document.Document `json:"documents"`
}

type FindBody struct {
	Filter     *document.Document `json:"filter,omitempty"`
	Projection *document.Document `json:"projection,omitempty"`
	Sort       *document.Document `json:"sort,omitempty"`
	Skip       int64              `json:"skip,omitempty"`
	Limit      int64              `json:"limit,omitempty"`
}

type UpdateBody struct {
	Filter *document.Document `json:"filter,omitempty"`
	Update *document.Document `json:"update"`
	Multi  bool               `json:"multi,omitempty"`
	Upsert bool               `json:"upsert,omitempty"`
}

type DeleteBody struct {
	Filter *document.Document `json:"filter,omitempty"`
	Multi  bool               `json:"multi,omitempty"`
}

type AggregateBody struct {
	Pipeline []*document.Document `json:"pipeline"`
}

type CountBody struct {
	Filter *document.Document `json:"filter,omitempty"`
}

// Response bodies.

type InsertResult struct {
	InsertedIDs []document.Value `json:"insertedIds"`

	// Error is set when an ordered insert stopped early.
	Error *ErrorBody `json:"error,omitempty"`
}

type DocumentsResult struct {
	Documents []*document.Document `json:"documents"`
}

type Failure struct {
	ID      document.Value `json:"id"`
	Message string         `json:"message"`
}

type UpdateResult struct {
	Matched    int64           `json:"matched"`
	Modified   int64           `json:"modified"`
	UpsertedID *document.Value `json:"upsertedId,omitempty"`
	Failures   []Failure       `json:"failures,omitempty"`
}

type DeleteResult struct {
	Deleted int64 `json:"deleted"`
}

type CountResult struct {
	Count int64 `json:"count"`
}

type ListResult struct {
	Collections []string `json:"collections"`
}

// ErrorBody is the payload of a StatusError response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorBody classifies err for the wire.
func NewErrorBody(err error) *ErrorBody {
	return &ErrorBody{Code: dberr.Code(err), Message: err.Error()}
}

// Err turns a received error body back into an error that matches the
// dberr sentinels with errors.Is.
func (e *ErrorBody) Err() error {
	return &RemoteError{Code: e.Code, Message: e.Message}
}

// RemoteError is an error reported by the server.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Unwrap() error { return dberr.FromCode(e.Code) }

// Marshal encodes a body.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a body. An empty body or a nil v is a no-op.
func Unmarshal(data []byte, v any) error {
	if len(data) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// EncodeErrorResponse encodes err as a StatusError frame.
func EncodeErrorResponse(err error) []byte {
	payload, mErr := Marshal(NewErrorBody(err))
	if mErr != nil {
		payload = []byte(`{"code":"internal","message":"unencodable error"}`)
	}
	return EncodeResponse(StatusError, payload)
}

// EncodeBodyResponse marshals v into a StatusOK frame.
func EncodeBodyResponse(v any) ([]byte, error) {
	payload, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return EncodeValueResponse(payload), nil
}
