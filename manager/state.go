package manager

import (
	"context"
)

const subscriberBuffer = 4

// State holds the single current outcome shown to the user. All access goes
// through the goroutine started by Run, so the slot is never written
// concurrently. Each Apply overwrites the previous outcome.
type State struct {
	apply       chan Outcome
	current     chan chan currentReply
	subscribe   chan chan Outcome
	unsubscribe chan chan Outcome
	done        chan struct{}
}

type currentReply struct {
	outcome Outcome
	ok      bool
}

func NewState() *State {
	return &State{
		apply:       make(chan Outcome),
		current:     make(chan chan currentReply),
		subscribe:   make(chan chan Outcome),
		unsubscribe: make(chan chan Outcome),
		done:        make(chan struct{}),
	}
}

// Run serves the state until ctx is cancelled. Subscriber channels are
// closed on exit.
func (s *State) Run(ctx context.Context) {
	var (
		outcome     Outcome
		has         bool
		subscribers = map[chan Outcome]struct{}{}
	)

	defer func() {
		for sub := range subscribers {
			close(sub)
		}
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.apply:
			outcome, has = o, true
			for sub := range subscribers {
				select {
				case sub <- o:
				default:
					// slow subscriber, drop
				}
			}
		case reply := <-s.current:
			reply <- currentReply{outcome: outcome, ok: has}
		case sub := <-s.subscribe:
			subscribers[sub] = struct{}{}
			if has {
				sub <- outcome
			}
		case sub := <-s.unsubscribe:
			if _, ok := subscribers[sub]; ok {
				delete(subscribers, sub)
				close(sub)
			}
		}
	}
}

// Apply replaces the current outcome. It returns false if the state is no
// longer running.
func (s *State) Apply(o Outcome) bool {
	select {
	case s.apply <- o:
		return true
	case <-s.done:
		return false
	}
}

// Current returns the latest applied outcome, if any.
func (s *State) Current() (Outcome, bool) {
	reply := make(chan currentReply, 1)
	select {
	case s.current <- reply:
	case <-s.done:
		return Outcome{}, false
	}

	r := <-reply
	return r.outcome, r.ok
}

// Subscribe returns a channel that receives the current outcome (if any)
// followed by every applied outcome. Updates are dropped for a subscriber
// that falls behind. The returned func releases the subscription.
func (s *State) Subscribe() (<-chan Outcome, func()) {
	sub := make(chan Outcome, subscriberBuffer)
	select {
	case s.subscribe <- sub:
	case <-s.done:
		close(sub)
		return sub, func() {}
	}

	return sub, func() {
		select {
		case s.unsubscribe <- sub:
		case <-s.done:
		}
	}
}

// Done is closed once Run has returned.
func (s *State) Done() <-chan struct{} {
	return s.done
}
