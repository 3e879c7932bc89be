package upstream

import (
	"context"
	"encoding/json"
	"sync"

	"atrax/internal/transport"
)

// fakeTransport is an in-memory Transport double letting tests script upstream behavior
// without spawning a real process, mirroring the teacher's own preference for hand-rolled
// fakes over a mocking framework in its aggregator tests.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []*transport.Message
	messages chan *transport.Message
	events   chan transport.Event
	closed   bool

	// onSend, if set, is invoked synchronously for every Send call so a test can script a
	// canned response onto the messages channel.
	onSend func(msg *transport.Message)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		messages: make(chan *transport.Message, 64),
		events:   make(chan transport.Event, 8),
	}
}

func (f *fakeTransport) Open(ctx context.Context) error { return nil }

func (f *fakeTransport) Send(ctx context.Context, msg *transport.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(msg)
	}
	return nil
}

func (f *fakeTransport) Messages() <-chan *transport.Message { return f.messages }
func (f *fakeTransport) Events() <-chan transport.Event       { return f.events }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.messages)
	}
	return nil
}

func (f *fakeTransport) respond(id json.RawMessage, result interface{}) {
	resp, _ := transport.NewResponse(id, result)
	f.messages <- resp
}

func (f *fakeTransport) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		if m.Method != "" {
			out = append(out, m.Method)
		}
	}
	return out
}
