package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Binary protocol for document operations.
//
// Request frame:
// [1 byte: OpCode][4 bytes: PayloadLength][Payload]
//
// Payload:
// [2 bytes: collLen][collection][4 bytes: bodyLen][body]
//
// OpCode values:
//   0x40 = INSERT
//   0x41 = FIND
//   0x42 = UPDATE
//   0x43 = DELETE
//   0x45 = AGGREGATE
//   0x46 = COUNT
//   0x47 = LIST (collection names; empty collection)
//   0x48 = DROP
//
// Bodies are JSON envelopes, see messages.go.
//
// Response frame:
// [1 byte: Status][4 bytes: PayloadLength][Payload]
//
// Status values:
//   0x00 = OK        (payload: JSON envelope)
//   0x01 = Error     (payload: ErrorBody)
//   0x02 = NotFound  (no payload)

const (
	OpDocInsert    byte = 0x40
	OpDocFind      byte = 0x41
	OpDocUpdate    byte = 0x42
	OpDocDelete    byte = 0x43
	OpDocAggregate byte = 0x45
	OpDocCount     byte = 0x46
	OpDocList      byte = 0x47
	OpDocDrop      byte = 0x48

	StatusOK       byte = 0x00
	StatusError    byte = 0x01
	StatusNotFound byte = 0x02
)

const (
	MaxCollectionLen = 65535    // 2 bytes
	MaxPayloadLen    = 64 << 20 // caps a single frame
	headerLen        = 5
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum payload length")
	ErrShortFrame    = errors.New("frame too short")
)

var opNames = map[byte]string{
	OpDocInsert:    "insert",
	OpDocFind:      "find",
	OpDocUpdate:    "update",
	OpDocDelete:    "delete",
	OpDocAggregate: "aggregate",
	OpDocCount:     "count",
	OpDocList:      "list",
	OpDocDrop:      "drop",
}

// OpName returns a short lowercase name for an opcode.
func OpName(op byte) string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("0x%02x", op)
}

// Request is a decoded request frame.
type Request struct {
	OpCode     byte
	Collection string
	Body       []byte
}

// Response is a decoded response frame.
type Response struct {
	Status  byte
	Payload []byte
}

// EncodeRequest builds a request frame.
func EncodeRequest(op byte, collection string, body []byte) ([]byte, error) {
	collLen := len(collection)
	if collLen > MaxCollectionLen {
		return nil, fmt.Errorf("collection name too long: %d bytes", collLen)
	}
	payloadLen := 2 + collLen + 4 + len(body)
	if payloadLen > MaxPayloadLen {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, headerLen+payloadLen)
	pos := 0
	buf[pos] = op
	pos++

	binary.BigEndian.PutUint32(buf[pos:], uint32(payloadLen))
	pos += 4

	binary.BigEndian.PutUint16(buf[pos:], uint16(collLen))
	pos += 2
	copy(buf[pos:], collection)
	pos += collLen

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(body)))
	pos += 4
	copy(buf[pos:], body)

	return buf, nil
}

// DecodeRequest parses a complete request frame.
func DecodeRequest(data []byte) (*Request, error) {
	if len(data) < headerLen {
		return nil, ErrShortFrame
	}
	payloadLen := int(binary.BigEndian.Uint32(data[1:5]))
	if len(data) < headerLen+payloadLen {
		return nil, fmt.Errorf("incomplete request")
	}
	return decodeRequestPayload(data[0], data[headerLen:headerLen+payloadLen])
}

func decodeRequestPayload(op byte, payload []byte) (*Request, error) {
	if _, ok := opNames[op]; !ok {
		return nil, fmt.Errorf("unknown opcode: %d", op)
	}
	name := OpName(op)
	if len(payload) < 2 {
		return nil, fmt.Errorf("invalid %s payload", name)
	}

	req := &Request{OpCode: op}
	pos := 0

	collLen := int(binary.BigEndian.Uint16(payload[pos:]))
	pos += 2
	if len(payload) < pos+collLen {
		return nil, fmt.Errorf("invalid %s payload", name)
	}
	req.Collection = string(payload[pos : pos+collLen])
	pos += collLen

	if len(payload) < pos+4 {
		return nil, fmt.Errorf("invalid %s payload", name)
	}
	bodyLen := int(binary.BigEndian.Uint32(payload[pos:]))
	pos += 4
	if len(payload) < pos+bodyLen {
		return nil, fmt.Errorf("invalid %s payload", name)
	}
	req.Body = payload[pos : pos+bodyLen]

	return req, nil
}

// ReadRequest reads one request frame from r.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	op, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	return decodeRequestPayload(op, payload)
}

// EncodeResponse builds a response frame.
func EncodeResponse(status byte, payload []byte) []byte {
	buf := make([]byte, headerLen+len(payload))
	buf[0] = status
	binary.BigEndian.PutUint32(buf[1:], uint32(len(payload)))
	copy(buf[headerLen:], payload)
	return buf
}

// EncodeValueResponse encodes a successful response carrying payload.
func EncodeValueResponse(payload []byte) []byte {
	return EncodeResponse(StatusOK, payload)
}

// EncodeNotFoundResponse encodes an empty not-found response.
func EncodeNotFoundResponse() []byte {
	return EncodeResponse(StatusNotFound, nil)
}

// DecodeResponse parses a complete response frame.
func DecodeResponse(data []byte) (*Response, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("response too short")
	}
	payloadLen := int(binary.BigEndian.Uint32(data[1:5]))
	if len(data) < headerLen+payloadLen {
		return nil, fmt.Errorf("incomplete response")
	}
	return newResponse(data[0], data[headerLen:headerLen+payloadLen])
}

// ReadResponse reads one response frame from r.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	status, payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}
	return newResponse(status, payload)
}

func newResponse(status byte, payload []byte) (*Response, error) {
	switch status {
	case StatusOK, StatusError, StatusNotFound:
	default:
		return nil, fmt.Errorf("unknown status: %d", status)
	}
	return &Response{Status: status, Payload: payload}, nil
}

func readFrame(r *bufio.Reader) (byte, []byte, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	payloadLen := binary.BigEndian.Uint32(header[1:])
	if payloadLen > MaxPayloadLen {
		return 0, nil, ErrFrameTooLarge
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload: %w", err)
	}
	return header[0], payload, nil
}
