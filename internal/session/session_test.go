package session

import (
	"testing"
	"time"
)

func TestFiltersMatchesEmptyAllowsAll(t *testing.T) {
	f := Filters{}
	if !f.matches("ANYTHING") {
		t.Fatal("empty filter should allow every symbol")
	}
}

func TestFiltersMatchesRestricts(t *testing.T) {
	f := Filters{Symbols: []string{"AAA", "BBB"}}
	if !f.matches("AAA") {
		t.Error("AAA should match")
	}
	if f.matches("CCC") {
		t.Error("CCC should not match")
	}
}

func TestSubscribeIsIdempotent(t *testing.T) {
	s := NewSession(nil, 4)
	s.Subscribe("market:stocks", Filters{Symbols: []string{"AAA"}})
	s.Subscribe("market:stocks", Filters{Symbols: []string{"BBB"}})

	f, ok := s.FiltersFor("market:stocks")
	if !ok {
		t.Fatal("expected subscription to exist")
	}
	if len(f.Symbols) != 1 || f.Symbols[0] != "BBB" {
		t.Fatalf("second Subscribe should replace filters, got %v", f.Symbols)
	}
	if len(s.Channels()) != 1 {
		t.Fatalf("got %d channels, want 1", len(s.Channels()))
	}
}

func TestUnsubscribeRemovesChannel(t *testing.T) {
	s := NewSession(nil, 4)
	s.Subscribe("market:stocks", Filters{})
	s.Unsubscribe("market:stocks")

	if _, ok := s.FiltersFor("market:stocks"); ok {
		t.Fatal("channel should no longer be subscribed")
	}
	if len(s.Channels()) != 0 {
		t.Fatalf("got %d channels after unsubscribe, want 0", len(s.Channels()))
	}
}

func TestUnsubscribeUnknownChannelIsNoOp(t *testing.T) {
	s := NewSession(nil, 4)
	s.Unsubscribe("never-subscribed")
	if len(s.Channels()) != 0 {
		t.Fatal("unsubscribing an unknown channel should not add state")
	}
}

func TestAllowsRequiresSubscription(t *testing.T) {
	s := NewSession(nil, 4)
	if s.Allows("market:stocks", "AAA") {
		t.Fatal("session not subscribed to the channel should not allow anything")
	}
	s.Subscribe("market:stocks", Filters{Symbols: []string{"AAA"}})
	if !s.Allows("market:stocks", "AAA") {
		t.Error("subscribed session with matching filter should allow")
	}
	if s.Allows("market:stocks", "ZZZ") {
		t.Error("subscribed session with non-matching filter should not allow")
	}
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	s := NewSession(nil, 1)
	if !s.Send([]byte("first")) {
		t.Fatal("first send into an empty buffer should succeed")
	}
	if s.Send([]byte("second")) {
		t.Fatal("second send into a full buffer should fail")
	}
	if s.Dropped != 1 {
		t.Fatalf("Dropped = %d, want 1", s.Dropped)
	}
}

func TestStaleReportsElapsedHeartbeat(t *testing.T) {
	s := NewSession(nil, 1)
	if s.Stale(time.Hour) {
		t.Fatal("freshly created session should not be stale against a generous timeout")
	}
	if !s.Stale(0) {
		t.Fatal("any elapsed time should exceed a zero timeout")
	}
}

func TestTouchResetsHeartbeat(t *testing.T) {
	s := NewSession(nil, 1)
	time.Sleep(time.Millisecond)
	s.Touch()
	if s.Stale(time.Hour) {
		t.Fatal("touching the session should keep it non-stale")
	}
}
