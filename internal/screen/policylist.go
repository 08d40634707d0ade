package screen

import (
	"strings"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/session"
	"github.com/jask/powerpolicy/internal/viewstate"
)

// PolicyList shows every policy, or the policies matching a search term.
// Listing and searching share one state.
type PolicyList struct {
	gate
	state *viewstate.State[[]api.Policy]
	query string

	// OnSearch, when set, receives each search term whose results arrived.
	OnSearch func(term string)
}

func NewPolicyList(s session.Store, c Caller) *PolicyList {
	return &PolicyList{gate: gate{session: s, api: c}, state: viewstate.New[[]api.Policy]()}
}

func (p *PolicyList) State() *viewstate.State[[]api.Policy] { return p.state }

// Query is the search term of the latest request; empty for the full list.
func (p *PolicyList) Query() string { return p.query }

func (p *PolicyList) Activate() Step { return p.Search("") }

// Search fetches policies matching term. A blank term lists everything.
func (p *PolicyList) Search(term string) Step {
	term = strings.TrimSpace(term)
	req := api.ListPolicies()
	if term != "" {
		req = api.SearchPolicies(term)
	}
	var ready func([]api.Policy)
	if term != "" && p.OnSearch != nil {
		ready = func([]api.Policy) { p.OnSearch(term) }
	}
	step := fetch(p.gate, p.state, req, nil, ready)
	if step.Outcome != HandOff {
		p.query = term
	}
	return step
}

func (p *PolicyList) Reload() Step { return p.Search(p.query) }

// Logout drops the session without telling the server.
func (p *PolicyList) Logout() Step {
	p.state.Close()
	p.session.Clear()
	return done(HandOff)
}

func (p *PolicyList) Deactivate() { p.state.Close() }
