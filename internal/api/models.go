package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timestamp accepts the datetime shapes the API emits: RFC 3339, naive ISO
// datetimes (no offset, read as UTC) and bare dates.
type Timestamp struct {
	time.Time
	dateOnly bool
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return Timestamp{Time: t, dateOnly: true}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Date builds a date-only Timestamp.
func Date(year int, month time.Month, day int) Timestamp {
	return Timestamp{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), dateOnly: true}
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	if t.dateOnly {
		return json.Marshal(t.Time.Format(time.DateOnly))
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// Format renders t for display. Dates are never shifted into loc; an absent
// value renders as "N/A".
func (t Timestamp) Format(layout string, loc *time.Location) string {
	if t.IsZero() {
		return "N/A"
	}
	if t.dateOnly {
		return t.Time.Format(layout)
	}
	if loc != nil {
		return t.Time.In(loc).Format(layout)
	}
	return t.Time.Format(layout)
}

type DocumentType struct {
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type PolicyVersion struct {
	ID               int64     `json:"id,omitempty"`
	PolicyID         int64     `json:"policy_id,omitempty"`
	VersionNumber    int       `json:"version_number"`
	EffectiveDate    Timestamp `json:"effective_date"`
	SummaryOfChanges *string   `json:"summary_of_changes"`
	CreatedBy        int64     `json:"created_by,omitempty"`
	CreatedAt        Timestamp `json:"created_at"`
}

type Policy struct {
	ID               int64          `json:"id"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	Status           string         `json:"status"`
	DocumentTypeID   *int64         `json:"document_type_id,omitempty"`
	DocumentType     *DocumentType  `json:"document_type"`
	CreatedBy        int64          `json:"created_by"`
	CreatedAt        Timestamp      `json:"created_at"`
	UpdatedAt        Timestamp      `json:"updated_at"`
	CurrentVersionID *int64         `json:"current_version_id,omitempty"`
	CurrentVersion   *PolicyVersion `json:"current_version"`
}

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id,omitempty"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt Timestamp `json:"created_at"`
}

// ReadUpdate is the mark-as-read request body.
type ReadUpdate struct {
	Read bool `json:"read"`
}

// StatusSummary maps a server-defined status label to a policy count.
type StatusSummary map[string]int

// Labels returns the status labels in display order.
func (s StatusSummary) Labels() []string {
	labels := make([]string, 0, len(s))
	for k := range s {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

func (s StatusSummary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

type AttestedUser struct {
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	AttestedAt Timestamp `json:"attested_at"`
}

type PendingUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type AttestationStatus struct {
	PolicyVersionID  int64          `json:"policy_version_id,omitempty"`
	PolicyTitle      string         `json:"policy_title"`
	VersionNumber    int            `json:"version_number"`
	TotalUsers       int            `json:"total_users"`
	AttestedCount    int            `json:"attested_count"`
	NonAttestedCount int            `json:"non_attested_count"`
	AttestedUsers    []AttestedUser `json:"attested_users"`
	NonAttestedUsers []PendingUser  `json:"non_attested_users"`
}

// Discrepancies lists the ways the reported counts disagree with each other
// or with the user lists. The server does not guarantee consistency.
func (a AttestationStatus) Discrepancies() []string {
	var out []string
	if a.AttestedCount+a.NonAttestedCount != a.TotalUsers {
		out = append(out, fmt.Sprintf("attested (%d) + not attested (%d) != total users (%d)",
			a.AttestedCount, a.NonAttestedCount, a.TotalUsers))
	}
	if len(a.AttestedUsers) != a.AttestedCount {
		out = append(out, fmt.Sprintf("attested count is %d but %d attested users were listed",
			a.AttestedCount, len(a.AttestedUsers)))
	}
	if len(a.NonAttestedUsers) != a.NonAttestedCount {
		out = append(out, fmt.Sprintf("non-attested count is %d but %d pending users were listed",
			a.NonAttestedCount, len(a.NonAttestedUsers)))
	}
	return out
}
