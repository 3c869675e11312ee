// Package frame implements the length-prefixed stream codec.
//
// Every inbound frame is laid out as
//
//	+----------+--------------------+-----------------------+
//	| type (1) | length (4, BE u32) | JSON payload (length) |
//	+----------+--------------------+-----------------------+
//
// The type byte must equal the request id the client subscribed with. The
// outbound subscribe request is that single id byte.
package frame

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/c360/gazestream/errors"
	"github.com/c360/gazestream/message"
)

const (
	// HeaderSize is the fixed frame header length.
	HeaderSize = 5

	// DefaultRequestID is the subscribe request byte.
	DefaultRequestID byte = 0x00

	// DefaultMaxPayload bounds the declared payload length.
	DefaultMaxPayload = 1 << 20
)

// MalformedPayloadError carries the raw payload text of a frame that could
// not be decoded into a Record.
type MalformedPayloadError struct {
	Raw string
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s: %v", errors.ErrMalformedPayload, e.Err)
}

// Unwrap exposes both the sentinel and the underlying decode error.
func (e *MalformedPayloadError) Unwrap() []error {
	return []error{errors.ErrMalformedPayload, e.Err}
}

// EncodeRequest returns the one-byte subscribe request.
func EncodeRequest(requestID byte) []byte {
	return []byte{requestID}
}

// EncodeFrame builds a frame around payload.
func EncodeFrame(typ byte, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = typ
	binary.BigEndian.PutUint32(buf[1:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeRecord marshals r and frames it.
func EncodeRecord(typ byte, r message.Record) ([]byte, error) {
	payload, err := message.Marshal(r)
	if err != nil {
		return nil, errors.WrapInvalid(err, "frame", "EncodeRecord", "marshal record")
	}
	return EncodeFrame(typ, payload), nil
}

// Decoder reads frames for one request id. The zero value accepts type 0x00
// and payloads up to DefaultMaxPayload.
type Decoder struct {
	RequestID  byte
	MaxPayload uint32
}

// NewDecoder creates a decoder for requestID.
func NewDecoder(requestID byte, maxPayload uint32) *Decoder {
	return &Decoder{RequestID: requestID, MaxPayload: maxPayload}
}

// DecodeFrame reads exactly one frame from r and decodes its payload.
// It never returns a partial Record: on any failure the Record is zero.
func (d *Decoder) DecodeFrame(r io.Reader) (message.Record, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if isShortRead(err) {
			return message.Record{}, errors.WrapInvalid(errors.ErrTruncatedHeader, "frame", "DecodeFrame", "read header")
		}
		return message.Record{}, streamError(err, "read header")
	}

	if header[0] != d.RequestID {
		return message.Record{}, errors.WrapInvalid(
			fmt.Errorf("%w: got 0x%02x, want 0x%02x", errors.ErrUnexpectedFrameType, header[0], d.RequestID),
			"frame", "DecodeFrame", "check type")
	}

	length := binary.BigEndian.Uint32(header[1:])
	limit := d.MaxPayload
	if limit == 0 {
		limit = DefaultMaxPayload
	}
	if length > limit {
		return message.Record{}, errors.WrapInvalid(
			fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrPayloadTooLarge, length, limit),
			"frame", "DecodeFrame", "check length")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if isShortRead(err) {
			return message.Record{}, errors.WrapInvalid(errors.ErrTruncatedPayload, "frame", "DecodeFrame", "read payload")
		}
		return message.Record{}, streamError(err, "read payload")
	}

	return DecodePayload(payload)
}

// DecodePayload parses a frame payload into a Record.
func DecodePayload(payload []byte) (message.Record, error) {
	if !utf8.Valid(payload) {
		return message.Record{}, errors.WrapInvalid(
			&MalformedPayloadError{Raw: string(payload), Err: stderrors.New("invalid UTF-8")},
			"frame", "DecodePayload", "decode payload")
	}

	rec, err := message.Unmarshal(payload)
	if err != nil {
		return message.Record{}, errors.WrapInvalid(
			&MalformedPayloadError{Raw: string(payload), Err: err},
			"frame", "DecodePayload", "decode payload")
	}
	return rec, nil
}

func isShortRead(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}

func streamError(err error, action string) error {
	return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrStreamIO, err), "frame", "DecodeFrame", action)
}
