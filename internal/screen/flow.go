// Package screen holds the controllers behind each view: policy list, policy
// detail, notifications and reports.
//
// Controllers never block. An operation returns a Step whose Next is the
// network half of the work; the host runs it off the UI thread and then calls
// the returned Landing back on the UI thread to apply the response. A Step
// whose Outcome is HandOff means the session is gone and the host must show
// the login flow.
package screen

import (
	"context"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/session"
	"github.com/jask/powerpolicy/internal/viewstate"
)

// Caller is the part of api.Client the controllers use.
type Caller interface {
	Call(ctx context.Context, req api.Request) api.Result
}

type Outcome int

const (
	// Applied means the view state changed.
	Applied Outcome = iota
	// Ignored means nothing changed: a stale response, a closed screen or a
	// no-op input.
	Ignored
	// HandOff means there is no usable session.
	HandOff
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case HandOff:
		return "hand-off"
	default:
		return "unknown"
	}
}

// Pending performs a request and returns how to apply its response.
type Pending func(ctx context.Context) Landing

// Landing applies a response. It must run on the UI thread.
type Landing func() Step

// Step is the result of an operation or a landing.
type Step struct {
	Outcome Outcome
	Next    Pending
}

func done(o Outcome) Step { return Step{Outcome: o} }

// Drive runs s and every follow-up request synchronously and returns the
// final outcome. It is for callers without an event loop.
func Drive(ctx context.Context, s Step) Outcome {
	for s.Next != nil {
		s = s.Next(ctx)()
	}
	return s.Outcome
}

// gate pairs the session with the API. Every request goes through it.
type gate struct {
	session session.Store
	api     Caller
}

func (g gate) signedIn() bool {
	_, ok := g.session.Get()
	return ok
}

// handOff clears the session after the server rejected it.
func (g gate) handOff() Step {
	g.session.Clear()
	return done(HandOff)
}

// fetch moves st to Loading and returns the request that will settle it.
// With no session nothing is issued and st is left untouched. shape, when
// set, adjusts decoded data before it is stored; ready runs after a
// successful store.
func fetch[T any](g gate, st *viewstate.State[T], req api.Request, shape func(T) T, ready func(T)) Step {
	if !g.signedIn() {
		return done(HandOff)
	}
	t := st.Begin()
	return Step{Outcome: Applied, Next: func(ctx context.Context) Landing {
		res := g.api.Call(ctx, req)
		return func() Step { return settle(g, st, t, res, shape, ready) }
	}}
}

func settle[T any](g gate, st *viewstate.State[T], t viewstate.Ticket, res api.Result, shape func(T) T, ready func(T)) Step {
	if !st.Current(t) {
		return done(Ignored)
	}
	switch res.Kind {
	case api.Unauthorized:
		return g.handOff()
	case api.Failure:
		st.Reject(t, res.Message)
		return done(Applied)
	}

	data, err := api.Decode[T](res)
	if err != nil {
		st.Reject(t, err.Error())
		return done(Applied)
	}
	if shape != nil {
		data = shape(data)
	}
	st.Resolve(t, data)
	if ready != nil {
		ready(data)
	}
	return done(Applied)
}
