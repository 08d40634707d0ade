package screen

import (
	"strconv"
	"strings"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/session"
	"github.com/jask/powerpolicy/internal/viewstate"
)

// InvalidVersion is shown when the version input is not a positive integer.
const InvalidVersion = "Policy version ID must be a positive whole number"

// Reports combines the policy status summary, fetched on activation, with an
// attestation lookup for a version the user enters. The two states are
// independent.
type Reports struct {
	gate
	summary     *viewstate.State[api.StatusSummary]
	attestation *viewstate.State[*api.AttestationStatus]
	version     int64

	// OnLookup, when set, receives each version id whose report arrived.
	OnLookup func(versionID int64)
}

func NewReports(s session.Store, c Caller) *Reports {
	return &Reports{
		gate:        gate{session: s, api: c},
		summary:     viewstate.New[api.StatusSummary](),
		attestation: viewstate.New[*api.AttestationStatus](),
	}
}

func (r *Reports) Summary() *viewstate.State[api.StatusSummary] { return r.summary }

func (r *Reports) Attestation() *viewstate.State[*api.AttestationStatus] { return r.attestation }

// Version is the version id of the latest lookup, or 0.
func (r *Reports) Version() int64 { return r.version }

func (r *Reports) Activate() Step {
	return fetch(r.gate, r.summary, api.PolicyStatusSummary(), nil, nil)
}

func (r *Reports) ReloadSummary() Step { return r.Activate() }

// LookupAttestation fetches the attestation report for the version id in
// input. Blank input does nothing; anything that is not a positive integer
// fails locally without a request.
func (r *Reports) LookupAttestation(input string) Step {
	input = strings.TrimSpace(input)
	if input == "" {
		return done(Ignored)
	}
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil || id <= 0 {
		if !r.signedIn() {
			return done(HandOff)
		}
		t := r.attestation.Begin()
		r.attestation.Reject(t, InvalidVersion)
		return done(Applied)
	}

	var ready func(*api.AttestationStatus)
	if r.OnLookup != nil {
		ready = func(a *api.AttestationStatus) {
			if a != nil {
				r.OnLookup(id)
			}
		}
	}
	step := fetch(r.gate, r.attestation, api.AttestationStatusFor(id), nil, ready)
	if step.Outcome != HandOff {
		r.version = id
	}
	return step
}

// AttestationMissing reports a successful lookup that carried no report.
func (r *Reports) AttestationMissing() bool {
	snap := r.attestation.Snapshot()
	return snap.Phase == viewstate.Ready && snap.Data == nil
}

func (r *Reports) Deactivate() {
	r.summary.Close()
	r.attestation.Close()
}
