// Package wire implements the length-prefixed text framing protocol shared
// by the chat server and client.
package wire

import (
	"fmt"
	"strings"
)

// Kind identifies the type of a decoded payload.
type Kind int

const (
	// KindUnknown is the zero value; ParseKind returns it only together
	// with an error.
	KindUnknown Kind = iota
	KindUser
	KindEntry
	KindDisconnect
	KindBroadcast
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "USER"
	case KindEntry:
		return "ENTRY"
	case KindDisconnect:
		return "DISCONNECT"
	case KindBroadcast:
		return "BROADCAST"
	default:
		return "UNKNOWN"
	}
}

// ParseKind maps a kind token, compared case-insensitively, to a Kind, or
// returns a ProtocolError for anything outside the closed set.
func ParseKind(token string) (Kind, error) {
	switch strings.ToUpper(token) {
	case "USER":
		return KindUser, nil
	case "ENTRY":
		return KindEntry, nil
	case "DISCONNECT":
		return KindDisconnect, nil
	case "BROADCAST":
		return KindBroadcast, nil
	default:
		return KindUnknown, &ProtocolError{Reason: fmt.Sprintf("unknown message kind %q", token)}
	}
}

// TypeDelimiter separates the kind token from the body inside a payload.
const TypeDelimiter = "$$"

// TypeOf returns the Kind encoded in payload, splitting at the first
// TypeDelimiter.
func TypeOf(payload string) (Kind, error) {
	token, _, _ := strings.Cut(payload, TypeDelimiter)
	return ParseKind(token)
}

// BodyOf returns the body encoded in payload, trimmed of surrounding
// whitespace, or "" if the payload carries no body.
func BodyOf(payload string) string {
	_, body, ok := strings.Cut(payload, TypeDelimiter)
	if !ok {
		return ""
	}
	return strings.TrimSpace(body)
}

// Message is a decoded protocol unit.
type Message struct {
	Kind Kind
	Body string
}

// Payload renders m as "<KIND>$$<body>", omitting the delimiter and body
// entirely when Body is empty.
func (m Message) Payload() string {
	if m.Body == "" {
		return m.Kind.String()
	}
	return m.Kind.String() + TypeDelimiter + m.Body
}

// Parse decodes a raw payload string (post length-header) into a Message.
func Parse(payload string) (Message, error) {
	kind, err := TypeOf(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Body: BodyOf(payload)}, nil
}
