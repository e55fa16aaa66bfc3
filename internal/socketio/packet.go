// Package socketio decodes and encodes the text frames of the Engine.IO v3 /
// Socket.IO v2 protocol spoken by the CoinCap push channel.
//
// Every websocket text frame carries one Engine.IO packet: a single type digit
// followed by an optional payload. Engine.IO message packets ('4') in turn carry
// a Socket.IO packet, whose event form looks like:
//
//	42["trades",{"coin":"BTC","price":43000.5}]
//	42/markets,17["trades",{...}]
//
// Only the text encoding is supported; binary attachments are rejected.
package socketio

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

// EnginePacketType is the Engine.IO packet type digit.
type EnginePacketType byte

const (
	EngineOpen    EnginePacketType = '0'
	EngineClose   EnginePacketType = '1'
	EnginePing    EnginePacketType = '2'
	EnginePong    EnginePacketType = '3'
	EngineMessage EnginePacketType = '4'
	EngineUpgrade EnginePacketType = '5'
	EngineNoop    EnginePacketType = '6'
)

// PacketType is the Socket.IO packet type digit carried by an Engine.IO message.
type PacketType byte

const (
	Connect     PacketType = '0'
	Disconnect  PacketType = '1'
	Event       PacketType = '2'
	Ack         PacketType = '3'
	Error       PacketType = '4'
	BinaryEvent PacketType = '5'
	BinaryAck   PacketType = '6'
)

var (
	// ErrEmptyFrame is returned for zero-length frames.
	ErrEmptyFrame = errors.New("empty frame")

	// ErrUnknownPacket is returned for unrecognised packet type digits.
	ErrUnknownPacket = errors.New("unknown packet type")

	// ErrMalformedEvent is returned when an event payload is not a JSON array
	// starting with a string event name.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrBinaryUnsupported is returned for binary event and ack packets.
	ErrBinaryUnsupported = errors.New("binary packets are not supported")
)

// Packet is one decoded frame.
type Packet struct {
	// Engine is the Engine.IO packet type.
	Engine EnginePacketType

	// Type is the Socket.IO packet type. Only meaningful for EngineMessage.
	Type PacketType

	// Namespace is the Socket.IO namespace, "/" when absent.
	Namespace string

	// AckID is the acknowledgement id, -1 when absent.
	AckID int64

	// Event is the event name for Event packets.
	Event string

	// Args holds the event arguments following the name, untouched.
	Args []json.RawMessage

	// Data is the raw payload after the type digits (handshake JSON, ping
	// payload, error object).
	Data []byte
}

// Handshake is the payload of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"` // milliseconds
	PingTimeout  int64    `json:"pingTimeout"`  // milliseconds
}

// Interval returns the ping interval as a duration.
func (h Handshake) Interval() time.Duration {
	return time.Duration(h.PingInterval) * time.Millisecond
}

// Timeout returns the ping timeout as a duration.
func (h Handshake) Timeout() time.Duration {
	return time.Duration(h.PingTimeout) * time.Millisecond
}

// Decode parses one websocket text frame.
func Decode(frame []byte) (Packet, error) {
	p := Packet{Namespace: "/", AckID: -1}
	if len(frame) == 0 {
		return p, ErrEmptyFrame
	}

	p.Engine = EnginePacketType(frame[0])
	switch p.Engine {
	case EngineOpen, EngineClose, EnginePing, EnginePong, EngineUpgrade, EngineNoop:
		p.Data = frame[1:]
		return p, nil
	case EngineMessage:
	default:
		return p, fmt.Errorf("%w: engine %q", ErrUnknownPacket, frame[0])
	}

	rest := frame[1:]
	if len(rest) == 0 {
		return p, fmt.Errorf("%w: message without socket packet", ErrEmptyFrame)
	}

	p.Type = PacketType(rest[0])
	rest = rest[1:]

	switch p.Type {
	case Connect, Disconnect, Event, Ack, Error:
	case BinaryEvent, BinaryAck:
		return p, ErrBinaryUnsupported
	default:
		return p, fmt.Errorf("%w: socket %q", ErrUnknownPacket, p.Type)
	}

	// Optional namespace, terminated by ','.
	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			rest = nil
		} else {
			p.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	// Optional ack id: leading digits.
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.ParseInt(string(rest[:digits]), 10, 64)
		if err != nil {
			return p, fmt.Errorf("%w: ack id: %v", ErrMalformedEvent, err)
		}
		p.AckID = id
		rest = rest[digits:]
	}

	p.Data = rest

	if p.Type == Event || p.Type == Ack {
		var items []json.RawMessage
		if err := json.Unmarshal(rest, &items); err != nil {
			return p, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}

		if p.Type == Event {
			if len(items) == 0 {
				return p, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
			}
			if err := json.Unmarshal(items[0], &p.Event); err != nil {
				return p, fmt.Errorf("%w: event name: %v", ErrMalformedEvent, err)
			}
			items = items[1:]
		}
		p.Args = items
	}

	return p, nil
}

// DecodeHandshake parses the payload of an open packet.
func DecodeHandshake(p Packet) (Handshake, error) {
	var h Handshake
	if p.Engine != EngineOpen {
		return h, fmt.Errorf("%w: expected open packet, got %q", ErrUnknownPacket, p.Engine)
	}
	if err := json.Unmarshal(p.Data, &h); err != nil {
		return h, fmt.Errorf("invalid handshake: %w", err)
	}
	return h, nil
}

// EncodePing returns the Engine.IO ping frame sent by clients.
func EncodePing() []byte {
	return []byte{byte(EnginePing)}
}

// EncodePong returns the Engine.IO pong frame answering a server ping. The
// ping payload, if any, is echoed back.
func EncodePong(payload []byte) []byte {
	return append([]byte{byte(EnginePong)}, payload...)
}

// EncodeConnect returns a Socket.IO connect frame for namespace.
// The default namespace needs no explicit connect in v2.
func EncodeConnect(namespace string) []byte {
	if namespace == "" || namespace == "/" {
		return []byte{byte(EngineMessage), byte(Connect)}
	}
	frame := []byte{byte(EngineMessage), byte(Connect)}
	frame = append(frame, namespace...)
	return append(frame, ',')
}
