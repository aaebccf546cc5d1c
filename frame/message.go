// Package frame implements the mplex wire codec: the Message record, the
// Encoder that serializes a Message to wire chunks, and the stateful
// Decoder that reassembles Messages from an arbitrarily chunked byte
// stream.
//
// Wire format (bit-exact):
//
//	varint(id << 3 | type)   // header word
//	varint(payload_length)   // zero when type is not data-bearing
//	payload_length bytes     // present iff type is NewStream/MessageReceiver/MessageInitiator
package frame

import "github.com/veilconnect/mplex/bytelist"

// Type is the wire message type tag.
type Type uint8

const (
	NewStream        Type = 0
	MessageReceiver  Type = 1
	MessageInitiator Type = 2
	CloseReceiver    Type = 3
	CloseInitiator   Type = 4
	ResetReceiver    Type = 5
	ResetInitiator   Type = 6
)

// String renders a Type the way log lines and test failures want to see
// it.
func (t Type) String() string {
	switch t {
	case NewStream:
		return "NEW_STREAM"
	case MessageReceiver:
		return "MESSAGE_RECEIVER"
	case MessageInitiator:
		return "MESSAGE_INITIATOR"
	case CloseReceiver:
		return "CLOSE_RECEIVER"
	case CloseInitiator:
		return "CLOSE_INITIATOR"
	case ResetReceiver:
		return "RESET_RECEIVER"
	case ResetInitiator:
		return "RESET_INITIATOR"
	default:
		return "UNKNOWN"
	}
}

// HasData reports whether t carries a data field on the wire (NewStream's
// payload is the optional stream name; MessageReceiver/MessageInitiator's
// is the payload fragment). CLOSE_* and RESET_* never carry data.
func (t Type) HasData() bool {
	return t == NewStream || t == MessageReceiver || t == MessageInitiator
}

// IsReceiverFamily reports whether t is one of the three "_RECEIVER"
// types (odd values 1, 3, 5): on the wire these mean "the sender is acting
// as receiver for this stream", so the decoding side routes them to its
// own initiators map.
func (t Type) IsReceiverFamily() bool {
	return t == MessageReceiver || t == CloseReceiver || t == ResetReceiver
}

// Valid reports whether t is one of the seven defined wire types.
func (t Type) Valid() bool {
	return t <= ResetInitiator
}

// Message is one decoded (or about-to-be-encoded) mplex wire record.
type Message struct {
	ID   uint64
	Type Type
	// Data is present only for data-bearing types (see Type.HasData). For
	// NewStream it is the UTF-8 stream name; for MessageReceiver/
	// MessageInitiator it is the payload fragment. Decoder hands back a
	// bytelist.List sharing, by reference, the chunks passed to
	// Decoder.Write; it stays valid across later Write calls as long as the
	// caller does not reuse those chunks' backing arrays.
	Data *bytelist.List
}

// DataLen returns the length of m.Data, or 0 if m carries no data.
func (m Message) DataLen() int {
	if m.Data == nil {
		return 0
	}
	return m.Data.Len()
}
