// Package transcribe abstracts the platform speech-to-text capability.
//
// An Adapter delivers interim and final transcripts through a Listener
// between Start and the end-of-capture signal. Implementations exist for
// hosts without speech support, for clients that recognize speech on-device
// and push the text to the server, and for scripted tests.
package transcribe

import (
	"errors"
	"sync"
)

// ErrUnsupported means the host has no speech recognition.
var ErrUnsupported = errors.New("speech recognition is not supported on this host")

// ErrNotCapturing is returned when a transcript arrives outside a capture.
var ErrNotCapturing = errors.New("no capture in progress")

// Listener receives capture events. Any field may be nil.
type Listener struct {
	OnTranscript func(text string, final bool)
	OnError      func(reason string)
	OnEnd        func()
}

func (l Listener) transcript(text string, final bool) {
	if l.OnTranscript != nil {
		l.OnTranscript(text, final)
	}
}

func (l Listener) fail(reason string) {
	if l.OnError != nil {
		l.OnError(reason)
	}
}

func (l Listener) end() {
	if l.OnEnd != nil {
		l.OnEnd()
	}
}

// Adapter is the start/stop contract of a speech capture source.
type Adapter interface {
	// Start begins a capture. Events go to l until OnEnd fires.
	Start(l Listener) error
	// Stop asks the source to finish; the final transcript may still follow.
	Stop() error
}

// Feeder accepts transcripts produced outside the process.
type Feeder interface {
	Deliver(text string, final bool) error
	Fail(reason string) error
}

// Unsupported is the adapter for hosts without speech recognition.
type Unsupported struct{}

func (Unsupported) Start(Listener) error { return ErrUnsupported }
func (Unsupported) Stop() error { return nil }

// Push is fed by a remote recognizer, such as a browser running on-device
// speech recognition and posting results to the API.
type Push struct {
	mu        sync.Mutex
	listener  *Listener
	stopping  bool
	haveFinal bool
}

// NewPush returns an idle Push adapter.
func NewPush() *Push {
	return &Push{}
}

// Start implements Adapter.
func (p *Push) Start(l Listener) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listener = &l
	p.stopping = false
	p.haveFinal = false
	return nil
}

// Stop implements Adapter. Capture ends immediately if a final transcript has
// already arrived, otherwise at the next final delivery.
func (p *Push) Stop() error {
	p.mu.Lock()
	l := p.listener
	if l == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	if !p.haveFinal {
		p.mu.Unlock()
		return nil
	}
	p.listener = nil
	p.mu.Unlock()
	l.end()
	return nil
}

// Deliver implements Feeder.
func (p *Push) Deliver(text string, final bool) error {
	p.mu.Lock()
	l := p.listener
	if l == nil {
		p.mu.Unlock()
		return ErrNotCapturing
	}
	if final {
		p.haveFinal = true
	}
	ending := final && p.stopping
	if ending {
		p.listener = nil
	}
	p.mu.Unlock()

	l.transcript(text, final)
	if ending {
		l.end()
	}
	return nil
}

// Fail implements Feeder. The capture ends after the error is reported.
func (p *Push) Fail(reason string) error {
	p.mu.Lock()
	l := p.listener
	p.listener = nil
	p.mu.Unlock()
	if l == nil {
		return ErrNotCapturing
	}
	l.fail(reason)
	l.end()
	return nil
}

// Event is one scripted capture event.
type Event struct {
	Text  string
	Final bool
	Err   string
}

// Scripted replays a fixed list of events per capture: everything on Start
// except the last event, which is replayed on Stop together with the end
// signal.
type Scripted struct {
	mu       sync.Mutex
	scripts  [][]Event
	listener *Listener
	pending  []Event
	Starts   int
}

// NewScripted returns an adapter that plays one script per Start call.
func NewScripted(scripts ...[]Event) *Scripted {
	return &Scripted{scripts: scripts}
}

// Start implements Adapter.
func (s *Scripted) Start(l Listener) error {
	s.mu.Lock()
	s.Starts++
	var script []Event
	if len(s.scripts) > 0 {
		script = s.scripts[0]
		s.scripts = s.scripts[1:]
	}
	s.listener = &l
	var now []Event
	if len(script) > 0 {
		now, s.pending = script[:len(script)-1], script[len(script)-1:]
	} else {
		s.pending = nil
	}
	s.mu.Unlock()

	for _, ev := range now {
		emit(l, ev)
	}
	return nil
}

// Stop implements Adapter.
func (s *Scripted) Stop() error {
	s.mu.Lock()
	l := s.listener
	pending := s.pending
	s.listener, s.pending = nil, nil
	s.mu.Unlock()
	if l == nil {
		return nil
	}
	for _, ev := range pending {
		emit(*l, ev)
	}
	l.end()
	return nil
}

func emit(l Listener, ev Event) {
	if ev.Err != "" {
		l.fail(ev.Err)
		return
	}
	l.transcript(ev.Text, ev.Final)
}
