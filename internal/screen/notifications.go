package screen

import (
	"context"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/session"
	"github.com/jask/powerpolicy/internal/viewstate"
)

// Notifications lists the signed-in user's notifications and marks them
// read. After a successful mark the whole list is fetched again; local rows
// are never patched.
type Notifications struct {
	gate
	state *viewstate.State[[]api.Notification]
	// ids the server has reported as read during this screen's lifetime
	seenRead map[int64]bool
	marking  map[int64]bool
	// last mark-as-read failure; outlives list reloads until the next mark
	markErr string
}

func NewNotifications(s session.Store, c Caller) *Notifications {
	return &Notifications{
		gate:     gate{session: s, api: c},
		state:    viewstate.New[[]api.Notification](),
		seenRead: map[int64]bool{},
		marking:  map[int64]bool{},
	}
}

func (n *Notifications) State() *viewstate.State[[]api.Notification] { return n.state }

func (n *Notifications) Activate() Step { return n.refetch() }

// Reload fetches the list again and dismisses any mark failure.
func (n *Notifications) Reload() Step {
	n.markErr = ""
	return n.refetch()
}

func (n *Notifications) refetch() Step {
	return fetch(n.gate, n.state, api.MyNotifications(), n.monotonic, nil)
}

// MarkError is the message of the last failed mark-as-read, if any.
func (n *Notifications) MarkError() string { return n.markErr }

// Marking reports whether a mark-as-read request for id is outstanding.
func (n *Notifications) Marking(id int64) bool { return n.marking[id] }

// MarkRead asks the server to mark id read. Any list fetch still in flight
// is discarded; on success exactly one fresh list fetch follows.
func (n *Notifications) MarkRead(id int64) Step {
	if !n.signedIn() {
		return done(HandOff)
	}
	if n.marking[id] {
		return done(Ignored)
	}
	n.marking[id] = true
	n.markErr = ""
	n.state.Supersede()

	req := api.MarkNotificationRead(id)
	return Step{Outcome: Applied, Next: func(ctx context.Context) Landing {
		res := n.api.Call(ctx, req)
		return func() Step { return n.marked(id, res) }
	}}
}

func (n *Notifications) marked(id int64, res api.Result) Step {
	delete(n.marking, id)
	if n.state.Closed() {
		return done(Ignored)
	}
	switch res.Kind {
	case api.Unauthorized:
		return n.handOff()
	case api.Failure:
		n.markErr = res.Message
		n.state.Fail(res.Message)
		return done(Applied)
	}
	if updated, err := api.Decode[*api.Notification](res); err == nil && updated != nil && updated.Read {
		n.seenRead[updated.ID] = true
	}
	return n.refetch()
}

// monotonic keeps a notification read once the server has said so, even if
// a later response disagrees.
func (n *Notifications) monotonic(list []api.Notification) []api.Notification {
	out := make([]api.Notification, len(list))
	for i, item := range list {
		if n.seenRead[item.ID] {
			item.Read = true
		}
		if item.Read {
			n.seenRead[item.ID] = true
		}
		out[i] = item
	}
	return out
}

// Unread counts unread notifications in the current list.
func (n *Notifications) Unread() int {
	list, _ := n.state.Data()
	c := 0
	for _, item := range list {
		if !item.Read {
			c++
		}
	}
	return c
}

func (n *Notifications) Deactivate() { n.state.Close() }
