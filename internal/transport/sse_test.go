package transport

import "testing"

func TestSSEEventIDRoundTrip(t *testing.T) {
	id := sseEventID{sessionID: "sess-1", streamID: "stream-1", sequence: 42}
	encoded := id.encode()
	parsed, ok := parseSSEEventID(encoded)
	if !ok {
		t.Fatalf("failed to parse %q", encoded)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: got %+v, want %+v", parsed, id)
	}
}

func TestParseSSEEventIDMalformed(t *testing.T) {
	cases := []string{"", "only-one-part", "a:b", "a:b:not-a-number"}
	for _, c := range cases {
		if _, ok := parseSSEEventID(c); ok {
			t.Fatalf("expected %q to fail to parse", c)
		}
	}
}

func TestStreamBufferReplayAfter(t *testing.T) {
	buf := &streamBuffer{}
	var ids []string
	for i := 0; i < 5; i++ {
		ev := buf.append("message", "payload", "sess-1", "stream-1")
		ids = append(ids, ev.id)
	}

	first, _ := parseSSEEventID(ids[1])
	replay, found := buf.replayAfter(first.sequence)
	if !found {
		t.Fatal("expected replay to be found within the ring")
	}
	if len(replay) != 3 {
		t.Fatalf("expected 3 events after sequence %d, got %d", first.sequence, len(replay))
	}
}

func TestStreamBufferReplayAfterAgedOut(t *testing.T) {
	buf := &streamBuffer{}
	for i := 0; i < sseRingBufferSize+10; i++ {
		buf.append("message", "payload", "sess-1", "stream-1")
	}
	_, found := buf.replayAfter(0)
	if found {
		t.Fatal("expected sequence 0 to have aged out of a ring that has wrapped past its capacity")
	}
}

func TestStreamBufferSubscribeReceivesAppends(t *testing.T) {
	buf := &streamBuffer{}
	sub := buf.subscribe()
	defer buf.unsubscribe(sub)

	buf.append("message", "hello", "sess-1", "stream-1")

	select {
	case ev := <-sub:
		if ev.data != "hello" {
			t.Fatalf("unexpected event data: %q", ev.data)
		}
	default:
		t.Fatal("expected subscriber to receive the appended event")
	}
}
