package transport

import (
	"testing"

	"rtc-transport/pkg/protocol"
)

func TestSession_Transitions(t *testing.T) {
	s := newSession("a", "room", nil, OfferReceived)

	steps := []struct {
		to   SessionState
		want bool
	}{
		{AnswerSent, true},
		{Joined, false},
		{CandidatesExchanging, true},
		{ChannelOpen, true},
		{AnswerSent, false},
		{Joined, true},
		{Closing, true},
		{Joined, false},
		{Closed, true},
		{Closed, false},
	}

	for _, step := range steps {
		from := s.State()
		if got := s.Transition(step.to); got != step.want {
			t.Errorf("%s -> %s = %v, want %v", from, step.to, got, step.want)
		}
	}

	if s.State() != Closed {
		t.Errorf("state = %s, want closed", s.State())
	}
}

func TestSession_AnyStateToClosed(t *testing.T) {
	for state := OfferReceived; state < Closed; state++ {
		if !canTransition(state, Closed) {
			t.Errorf("%s -> closed not allowed", state)
		}
	}
}

func TestSession_CloseClosesChannel(t *testing.T) {
	ch := newFakeChannel()
	s := newSession("a", "room", nil, ChannelOpen)
	s.attach(ch, NewClient("a", ch))

	if !s.IsOpen() {
		t.Fatal("session not open")
	}
	if !s.Ping() {
		t.Fatal("Ping failed on open channel")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if ch.closes != 1 {
		t.Errorf("closes = %d, want 1", ch.closes)
	}
	if s.State() != Closed || s.IsOpen() {
		t.Errorf("state = %s, open = %v", s.State(), s.IsOpen())
	}

	sent := ch.sent()
	if len(sent) != 1 || sent[0][0] != protocol.Ping {
		t.Errorf("sent = %v, want one PING", sent)
	}
}
