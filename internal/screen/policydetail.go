package screen

import (
	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/session"
	"github.com/jask/powerpolicy/internal/viewstate"
)

// PolicyDetail shows one policy and its current version.
type PolicyDetail struct {
	gate
	state *viewstate.State[*api.Policy]
	id    int64
	set   bool
}

func NewPolicyDetail(s session.Store, c Caller) *PolicyDetail {
	return &PolicyDetail{gate: gate{session: s, api: c}, state: viewstate.New[*api.Policy]()}
}

func (d *PolicyDetail) State() *viewstate.State[*api.Policy] { return d.state }

// ID is the policy currently shown, if any.
func (d *PolicyDetail) ID() (int64, bool) { return d.id, d.set }

// Show navigates to policy id. Showing the policy already on screen is a
// no-op; use Reload to fetch it again. A different id drops the policy
// shown so far.
func (d *PolicyDetail) Show(id int64) Step {
	if d.set && d.id == id {
		return done(Ignored)
	}
	if !d.signedIn() {
		return done(HandOff)
	}
	if d.set {
		d.state.Forget()
	}
	d.id, d.set = id, true
	return fetch(d.gate, d.state, api.GetPolicy(id), nil, nil)
}

func (d *PolicyDetail) Reload() Step {
	if !d.set {
		return done(Ignored)
	}
	return fetch(d.gate, d.state, api.GetPolicy(d.id), nil, nil)
}

// NotFound reports a successful fetch that carried no policy.
func (d *PolicyDetail) NotFound() bool {
	snap := d.state.Snapshot()
	return snap.Phase == viewstate.Ready && snap.Data == nil
}

func (d *PolicyDetail) Deactivate() { d.state.Close() }
