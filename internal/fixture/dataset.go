package fixture

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/powerpolicy/internal/api"
)

// User is an account known to the fixture backend.
type User struct {
	ID       int64
	Username string
	Email    string
	Password string
	Roles    []string
}

// Attestation records one user acknowledging one policy version.
type Attestation struct {
	UserID    int64
	VersionID int64
	At        time.Time
}

// Dataset is everything the fixture serves.
type Dataset struct {
	Users         []User
	Policies      []api.Policy
	Versions      []api.PolicyVersion
	Notifications []api.Notification
	Attestations  []Attestation
}

func strptr(s string) *string { return &s }

// Sample returns the demo dataset: ten users (admin/admin and reader/reader
// can sign in), eight policies, and version 2 of "Remote Work" attested by
// seven of the ten users.
func Sample() Dataset {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	d := Dataset{}

	d.Users = []User{
		{ID: 1, Username: "admin", Email: "admin@example.com", Password: "admin", Roles: []string{"Admin"}},
		{ID: 2, Username: "reader", Email: "reader@example.com", Password: "reader"},
	}
	staff := []string{"amara", "bo", "chen", "dara", "eli", "farah", "gus", "hana"}
	for i, name := range staff {
		u := User{ID: int64(len(d.Users) + 1), Username: name, Email: name + "@example.com", Password: uuid.NewString()}
		if i%3 == 0 {
			u.Roles = []string{"Reviewer"}
		}
		d.Users = append(d.Users, u)
	}

	types := []api.DocumentType{
		{ID: 1, Name: "Policy", Description: "Organisation-wide rule"},
		{ID: 2, Name: "Standard Operating Procedure", Description: "A formal document outlining procedures."},
	}

	titles := []struct {
		title, desc, status string
		docType             int
	}{
		{"Budget Approval", "Who may approve spending and up to what limit.", "active", 1},
		{"Travel Expenses", "Booking and reimbursing business travel.", "active", 2},
		{"Data Retention", "How long records are kept and how they are disposed of.", "review", 1},
		{"Information Security", "Baseline controls for devices and accounts.", "active", 1},
		{"Code of Conduct", "Expected behaviour for all staff.", "active", 0},
		{"Procurement", "Supplier selection and budget sign-off.", "draft", 2},
		{"Remote Work", "Eligibility and expectations for working remotely.", "active", 1},
		{"Incident Response", "Reporting and handling security incidents.", "archived", 2},
	}

	// Remote Work owns version ids 1 and 2 so the attestation report for
	// version 2 belongs to it.
	nextVersion := int64(3)
	for i, t := range titles {
		p := api.Policy{
			ID:          int64(i + 1),
			Title:       t.title,
			Description: t.desc,
			Status:      t.status,
			CreatedBy:   1,
			CreatedAt:   api.Timestamp{Time: base.AddDate(0, 0, i)},
			UpdatedAt:   api.Timestamp{Time: base.AddDate(0, 1, i)},
		}
		if t.docType > 0 {
			dt := types[t.docType-1]
			p.DocumentTypeID = &dt.ID
			p.DocumentType = &dt
		}
		if t.status == "draft" {
			d.Policies = append(d.Policies, p)
			continue
		}

		var ids []int64
		if p.Title == "Remote Work" {
			ids = []int64{1, 2}
		} else {
			ids = []int64{nextVersion}
			nextVersion++
		}
		for n, id := range ids {
			v := api.PolicyVersion{
				ID:            id,
				PolicyID:      p.ID,
				VersionNumber: n + 1,
				CreatedBy:     1,
				CreatedAt:     api.Timestamp{Time: base.AddDate(0, n, i)},
				EffectiveDate: api.Date(2023+n, time.January, 1),
			}
			if n == 0 {
				v.SummaryOfChanges = strptr("Initial version.")
			} else {
				v.SummaryOfChanges = strptr("clarified eligibility")
			}
			d.Versions = append(d.Versions, v)
		}
		last := d.Versions[len(d.Versions)-1]
		p.CurrentVersionID = &last.ID
		p.CurrentVersion = &last
		d.Policies = append(d.Policies, p)
	}

	for i, u := range d.Users[2:9] {
		d.Attestations = append(d.Attestations, Attestation{UserID: u.ID, VersionID: 2, At: base.AddDate(0, 2, i)})
	}
	d.Attestations = append(d.Attestations, Attestation{UserID: 1, VersionID: 3, At: base.AddDate(0, 1, 0)})

	r := rand.New(rand.NewSource(7))
	id := int64(1)
	for _, u := range d.Users[:2] {
		for i, p := range d.Policies {
			if r.Intn(3) == 0 && i != 6 {
				continue
			}
			d.Notifications = append(d.Notifications, api.Notification{
				ID:        id,
				UserID:    u.ID,
				Message:   notificationMessage(r, p),
				Read:      r.Intn(4) == 0,
				CreatedAt: api.Timestamp{Time: base.AddDate(0, 2, 0).Add(time.Duration(id) * time.Hour)},
			})
			id++
		}
	}
	return d
}

func notificationMessage(r *rand.Rand, p api.Policy) string {
	if p.CurrentVersion != nil && p.CurrentVersion.VersionNumber > 1 {
		return fmt.Sprintf("A new version (%d) of the policy '%s' has been created.", p.CurrentVersion.VersionNumber, p.Title)
	}
	verbs := []string{"Please review", "Reminder to attest", "Updated guidance on"}
	return fmt.Sprintf("%s %s.", verbs[r.Intn(len(verbs))], strings.ToLower(p.Title))
}
