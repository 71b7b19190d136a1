package wire

import "testing"

func TestParseKind_UnknownIsProtocolError(t *testing.T) {
	if _, err := ParseKind("BOGUS"); err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
}

func TestParseKind_CaseInsensitive(t *testing.T) {
	k, err := ParseKind("user")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != KindUser {
		t.Fatalf("got %v, want KindUser", k)
	}
}

func TestBodyOf_NoBody(t *testing.T) {
	if got := BodyOf("DISCONNECT"); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestBodyOf_TrimsWhitespace(t *testing.T) {
	if got := BodyOf("ENTRY$$  hi there  "); got != "hi there" {
		t.Fatalf("got %q", got)
	}
}

func TestMessage_Payload(t *testing.T) {
	m := Message{Kind: KindUser, Body: "ann"}
	if got := m.Payload(); got != "USER$$ann" {
		t.Fatalf("got %q", got)
	}
	m2 := Message{Kind: KindDisconnect}
	if got := m2.Payload(); got != "DISCONNECT" {
		t.Fatalf("got %q", got)
	}
}

func TestParse_RoundTrip(t *testing.T) {
	msg, err := Parse("ENTRY$$hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Kind != KindEntry || msg.Body != "hi" {
		t.Fatalf("got %+v", msg)
	}
}
