package pipeline

import (
	"context"
	"time"

	"github.com/bosley/minutes/store"
)

// State is what observers see of the pipeline.
type State struct {
	Recording  bool            `json:"recording"`
	Processing bool            `json:"processing"`
	InFlight   int             `json:"inFlight"`
	Elapsed    time.Duration   `json:"elapsed"`
	Recent     []store.Meeting `json:"recent"`
}

func (s State) clone() State {
	out := s
	out.Recent = append([]store.Meeting(nil), s.Recent...)
	return out
}

type loopOp func(l *stateLoop)

// stateLoop owns State on a single goroutine. Every mutation is posted
// and applied in order; subscribers receive the latest snapshot.
type stateLoop struct {
	ops  chan loopOp
	done chan struct{}

	// Only touched on the loop goroutine.
	state  State
	subs   map[int]chan State
	nextID int
}

func newStateLoop() *stateLoop {
	return &stateLoop{
		ops:   make(chan loopOp, 64),
		done:  make(chan struct{}),
		state: State{Recent: []store.Meeting{}},
		subs:  make(map[int]chan State),
	}
}

func (l *stateLoop) run(ctx context.Context) {
	defer func() {
		for id, ch := range l.subs {
			close(ch)
			delete(l.subs, id)
		}
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-l.ops:
			op(l)
		}
	}
}

// post queues op. It reports false once the loop has exited.
func (l *stateLoop) post(op loopOp) bool {
	select {
	case l.ops <- op:
		return true
	case <-l.done:
		return false
	}
}

// update applies fn to the state and publishes the result.
func (l *stateLoop) update(fn func(s *State)) {
	l.post(func(l *stateLoop) {
		fn(&l.state)
		l.publish()
	})
}

func (l *stateLoop) publish() {
	snap := l.state.clone()
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (l *stateLoop) snapshot(ctx context.Context) State {
	reply := make(chan State, 1)
	if !l.post(func(l *stateLoop) { reply <- l.state.clone() }) {
		return State{}
	}
	select {
	case s := <-reply:
		return s
	case <-ctx.Done():
		return State{}
	case <-l.done:
		return State{}
	}
}

func (l *stateLoop) subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	idCh := make(chan int, 1)

	ok := l.post(func(l *stateLoop) {
		id := l.nextID
		l.nextID++
		l.subs[id] = ch
		ch <- l.state.clone()
		idCh <- id
	})
	if !ok {
		close(ch)
		return ch, func() {}
	}

	var id int
	select {
	case id = <-idCh:
	case <-l.done:
		return ch, func() {}
	}

	cancel := func() {
		l.post(func(l *stateLoop) {
			if sub, found := l.subs[id]; found {
				delete(l.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}
