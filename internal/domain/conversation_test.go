package domain

import "testing"

func TestConversationKeyCanonical(t *testing.T) {
	if got := ConversationKey(7, 3); got != "3:7" {
		t.Fatalf("expected 3:7, got %q", got)
	}
	if ConversationKey(3, 7) != ConversationKey(7, 3) {
		t.Fatalf("key must not depend on argument order")
	}
	if got := ConversationKey(5, 5); got != "5:5" {
		t.Fatalf("self pair: expected 5:5, got %q", got)
	}
}

func TestParseConversationKey(t *testing.T) {
	a, b, err := ParseConversationKey("3:7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 3 || b != 7 {
		t.Fatalf("expected (3,7), got (%d,%d)", a, b)
	}

	for _, bad := range []string{"", "3", "3:", ":7", "a:b", "7:3"} {
		if _, _, err := ParseConversationKey(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestCallSessionParties(t *testing.T) {
	s := CallSession{ID: "c1", CallerID: 1, CalleeID: 2, State: CallRinging}

	if s.OtherParty(1) != 2 || s.OtherParty(2) != 1 {
		t.Fatalf("OtherParty mismatch")
	}
	if !s.Involves(1) || !s.Involves(2) || s.Involves(3) {
		t.Fatalf("Involves mismatch")
	}
	if s.PairKey() != ConversationKey(2, 1) {
		t.Fatalf("PairKey must be the canonical pair key")
	}
}

func TestCallStateTerminal(t *testing.T) {
	for st, want := range map[CallState]bool{
		CallRinging:  false,
		CallActive:   false,
		CallEnded:    true,
		CallRejected: true,
		CallFailed:   true,
	} {
		if st.Terminal() != want {
			t.Fatalf("%s: Terminal() = %v, want %v", st, !want, want)
		}
	}
}
