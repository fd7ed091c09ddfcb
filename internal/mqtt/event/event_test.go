package event

import (
	"errors"
	"fmt"
	"testing"
)

type recordingLogger struct {
	errors []string
}

func (l *recordingLogger) Error(msg string, args ...any) {
	l.errors = append(l.errors, fmt.Sprint(append([]any{msg}, args...)...))
}

func TestDispatchWithoutHandler(t *testing.T) {
	d := NewDispatcher()
	d.Dispatch(Event{Kind: ConnectionEstablished}) // must not panic
}

func TestDispatchInvokesHandlerOnce(t *testing.T) {
	d := NewDispatcher()
	var got []Event
	d.Register(func(e Event) { got = append(got, e) })

	d.Dispatch(Event{Kind: MessageReceived, Topic: []byte("rtest"), Payload: []byte("hi")})

	if len(got) != 1 {
		t.Fatalf("handler called %d times, want 1", len(got))
	}
	if got[0].Kind != MessageReceived || string(got[0].Topic) != "rtest" || string(got[0].Payload) != "hi" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestRegisterReplacesHandler(t *testing.T) {
	d := NewDispatcher()
	first, second := 0, 0
	d.Register(func(Event) { first++ })
	d.Register(func(Event) { second++ })

	d.Dispatch(Event{Kind: ConnectionEstablished})

	if first != 0 || second != 1 {
		t.Errorf("first = %d, second = %d, want 0, 1", first, second)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	d := NewDispatcher()
	logger := &recordingLogger{}
	d.SetLogger(logger)
	d.Register(func(Event) { panic("boom") })

	d.Dispatch(Event{Kind: ConnectionLost, Err: errors.New("eof")})
	d.Dispatch(Event{Kind: ConnectionLost})

	if d.Panics() != 2 {
		t.Errorf("Panics() = %d, want 2", d.Panics())
	}
	if len(logger.errors) != 2 {
		t.Errorf("logged %d errors, want 2", len(logger.errors))
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{ConnectionEstablished, "connection_established"},
		{ConnectionLost, "connection_lost"},
		{MessageReceived, "message_received"},
		{SubscriptionAcknowledged, "subscription_acknowledged"},
		{PublishCompleted, "publish_completed"},
		{RequestExpired, "request_expired"},
		{Kind(99), "kind(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}
}
