package wire

import (
	"strconv"
	"strings"
)

// LengthDelimiter separates the decimal length header from the payload.
const LengthDelimiter = "##"

// MaxHeaderLength is the safety cap on a single frame's declared payload
// length, in bytes. A header claiming more is treated as a protocol
// violation rather than an attempt to allocate an oversized buffer.
const MaxHeaderLength = 1 << 20 // 1 MiB

// MaxMsgLength is the size of the scratch buffer used for a single
// non-blocking read.
const MaxMsgLength = 8192

// PrependLengthHeader returns payload prefixed with its UTF-8 byte length
// and the length delimiter: "<len>##<payload>".
func PrependLengthHeader(payload string) string {
	var b strings.Builder
	b.Grow(len(payload) + 12)
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteString(LengthDelimiter)
	b.WriteString(payload)
	return b.String()
}

// Encode validates kind/body and returns the fully framed byte sequence
// ready to be queued for a socket write.
func Encode(kind Kind, body string) ([]byte, error) {
	if strings.Contains(body, LengthDelimiter) || strings.Contains(body, TypeDelimiter) {
		return nil, ErrBodyContainsDelimiter
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c < 0x20 || c > 0x7e {
			return nil, ErrBodyNotASCII
		}
	}
	msg := Message{Kind: kind, Body: body}
	return []byte(PrependLengthHeader(msg.Payload())), nil
}
