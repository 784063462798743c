// Package transporttest provides an in-memory state.Transport for tests.
package transporttest

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/a-essam23/collab-dispatch/pkg/transport"
)

// Frame is one decoded outbound message.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Recorder captures every frame sent to it. A closed Recorder rejects sends
// the way a real connection does.
type Recorder struct {
	id uuid.UUID

	mu       sync.Mutex
	frames   []Frame
	closed   bool
	closeErr error
	failSend error

	// OnClose runs once, outside the lock, when Close is first called.
	OnClose func(id uuid.UUID, err error)
}

func NewRecorder() *Recorder {
	return &Recorder{id: uuid.New()}
}

func (r *Recorder) ID() uuid.UUID { return r.id }

func (r *Recorder) Send(message []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return transport.ErrClosed
	}
	if r.failSend != nil {
		return r.failSend
	}
	var f Frame
	if err := json.Unmarshal(message, &f); err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *Recorder) Close(err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.closeErr = err
	hook := r.OnClose
	r.mu.Unlock()
	if hook != nil {
		hook(r.id, err)
	}
}

// FailSends makes every following Send return err, simulating a stalled peer.
func (r *Recorder) FailSends(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failSend = err
}

func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Events returns the frames with the given event name.
func (r *Recorder) Events(name string) []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Frame
	for _, f := range r.frames {
		if f.Event == name {
			out = append(out, f)
		}
	}
	return out
}

// Last returns the most recent frame, or false when nothing was sent.
func (r *Recorder) Last() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return Frame{}, false
	}
	return r.frames[len(r.frames)-1], true
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

// Decode unmarshals a frame payload into v.
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Payload, v)
}
