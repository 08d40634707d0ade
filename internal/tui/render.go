package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/session"
	"github.com/jask/powerpolicy/internal/viewstate"
)

func (a *App) View() string {
	var body string
	switch a.state {
	case viewLogin:
		body = a.renderLogin()
	case viewDetail:
		body = a.renderDetail()
	case viewNotifications:
		body = a.renderNotifications()
	case viewReports:
		body = a.renderReports()
	default:
		body = a.renderPolicies()
	}
	parts := []string{a.renderHeader(), listBoxStyle.Render(body)}
	if a.inputKind != "" {
		parts = append(parts, a.renderInput())
	}
	if a.status != "" {
		parts = append(parts, a.renderStatus())
	}
	parts = append(parts, a.renderFooter(a.keys.HelpBindings(a.scope())))
	return strings.Join(parts, "\n")
}

func (a *App) renderHeader() string {
	tabs := []struct {
		label string
		state appState
	}{
		{"1 Policies", viewPolicies},
		{"2 Notifications", viewNotifications},
		{"3 Reports", viewReports},
	}
	var b strings.Builder
	b.WriteString(headerAppStyle.Render("Power Policy") + " ")
	for _, t := range tabs {
		label := t.label
		if t.state == viewNotifications && a.notes != nil {
			if n := a.notes.Unread(); n > 0 {
				label = fmt.Sprintf("%s (%d)", label, n)
			}
		}
		active := t.state == a.state || (t.state == viewPolicies && a.state == viewDetail)
		if active {
			b.WriteString(activeTabStyle.Render(label))
		} else {
			b.WriteString(inactiveTabStyle.Render(label))
		}
	}
	if tok, ok := a.deps.Session.Get(); ok {
		if who := session.Subject(tok); who != "" {
			b.WriteString(whoStyle.Render("  " + who))
		}
	}
	if a.width == 0 {
		return headerBarStyle.Render(b.String())
	}
	return headerBarStyle.Width(a.width).Render(b.String())
}

// phaseLine is the loading or error line shared by every view.
func phaseLine[T any](snap viewstate.Snapshot[T], loading string) string {
	switch snap.Phase {
	case viewstate.Loading:
		return statusStyle.Render(loading)
	case viewstate.Error:
		return errorStyle.Render("Error: " + snap.Message)
	}
	return ""
}

func (a *App) renderPolicies() string {
	snap := a.list.State().Snapshot()
	var b strings.Builder
	title := "Policies"
	if q := a.list.Query(); q != "" {
		title = fmt.Sprintf("Policies matching %q", q)
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")
	if line := phaseLine(snap, "Loading policies..."); line != "" {
		b.WriteString(line + "\n")
	}
	if snap.HasData {
		if len(snap.Data) == 0 {
			b.WriteString("No policies found.\n")
		}
		for i, p := range snap.Data {
			prefix := "  "
			if i == a.policyCursor {
				prefix = cursorStyle.Render("▶ ")
			}
			fmt.Fprintf(&b, "%s%s - %s\n", prefix, p.Title, p.Status)
			if p.Description != "" {
				b.WriteString("    " + mutedStyle.Render(p.Description) + "\n")
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderDetail() string {
	snap := a.detail.State().Snapshot()
	var b strings.Builder
	if line := phaseLine(snap, "Loading policy details..."); line != "" {
		b.WriteString(line + "\n")
	}
	if a.detail.NotFound() {
		b.WriteString("Policy not found.")
		return b.String()
	}
	if !snap.HasData || snap.Data == nil {
		return strings.TrimRight(b.String(), "\n")
	}
	p := snap.Data
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label+":") + " " + value + "\n")
	}

	b.WriteString(titleStyle.Render(p.Title) + "\n\n")
	field("Status", p.Status)
	field("Description", p.Description)
	docType := "N/A"
	if p.DocumentType != nil {
		docType = p.DocumentType.Name
	}
	field("Document Type", docType)
	field("Created By", fmt.Sprintf("%d", p.CreatedBy))
	field("Created At", p.CreatedAt.Format(a.dateFormat, a.loc))
	field("Last Updated", p.UpdatedAt.Format(a.dateFormat, a.loc))

	b.WriteString("\n" + titleStyle.Render("Current Version") + "\n")
	cv := p.CurrentVersion
	if cv == nil {
		b.WriteString("No current version available.")
		return b.String()
	}
	field("Version Number", valueStyle.Render(fmt.Sprintf("%d", cv.VersionNumber)))
	field("Effective Date", cv.EffectiveDate.Format(a.dateFormat, a.loc))
	summary := "N/A"
	if cv.SummaryOfChanges != nil && *cv.SummaryOfChanges != "" {
		summary = *cv.SummaryOfChanges
	}
	field("Summary of Changes", summary)
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderNotifications() string {
	snap := a.notes.State().Snapshot()
	var b strings.Builder
	b.WriteString(titleStyle.Render("Your Notifications") + "\n\n")
	if line := phaseLine(snap, "Loading notifications..."); line != "" {
		b.WriteString(line + "\n")
	}
	if msg := a.notes.MarkError(); msg != "" && !(snap.Phase == viewstate.Error && snap.Message == msg) {
		b.WriteString(errorStyle.Render("Error: "+msg) + "\n")
	}
	if snap.HasData {
		if len(snap.Data) == 0 {
			b.WriteString("No new notifications.\n")
		}
		for i, n := range snap.Data {
			prefix := "  "
			if i == a.noteCursor {
				prefix = cursorStyle.Render("▶ ")
			}
			marker := infoStyle.Render("●")
			msg := n.Message
			if n.Read {
				marker = mutedStyle.Render("○")
				msg = mutedStyle.Render(msg)
			}
			line := fmt.Sprintf("%s%s %s", prefix, marker, msg)
			if a.notes.Marking(n.ID) {
				line += " " + statusStyle.Render("(marking...)")
			}
			b.WriteString(line + "\n")
			b.WriteString("    " + mutedStyle.Render("Received: "+n.CreatedAt.Format(a.timeFormat, a.loc)) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderReports() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Reports & Dashboards") + "\n\n")

	b.WriteString(titleStyle.Render("Policy Status Summary") + "\n")
	sum := a.reports.Summary().Snapshot()
	if line := phaseLine(sum, "Loading reports..."); line != "" {
		b.WriteString(line + "\n")
	}
	if sum.HasData {
		if len(sum.Data) == 0 {
			b.WriteString("No policy status summary available.\n")
		} else {
			for _, label := range sum.Data.Labels() {
				fmt.Fprintf(&b, "  %s: %s policies\n", label, valueStyle.Render(fmt.Sprintf("%d", sum.Data[label])))
			}
			fmt.Fprintf(&b, "  %s %d policies\n", labelStyle.Render("Total:"), sum.Data.Total())
		}
	}

	b.WriteString("\n" + titleStyle.Render("Attestation Status by Policy Version") + "\n")
	att := a.reports.Attestation().Snapshot()
	if att.Phase == viewstate.Idle {
		b.WriteString(mutedStyle.Render("Press v to look up a policy version."))
		return b.String()
	}
	if line := phaseLine(att, "Loading attestation status..."); line != "" {
		b.WriteString(line + "\n")
	}
	if a.reports.AttestationMissing() {
		fmt.Fprintf(&b, "No attestation report for version %d.", a.reports.Version())
		return b.String()
	}
	if att.HasData && att.Data != nil {
		a.renderAttestation(&b, att.Data)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderAttestation(b *strings.Builder, s *api.AttestationStatus) {
	fmt.Fprintf(b, "Policy: %s (Version %d)\n", s.PolicyTitle, s.VersionNumber)
	fmt.Fprintf(b, "Total Users: %d\n", s.TotalUsers)
	fmt.Fprintf(b, "Attested: %s\n", okStyle.Render(fmt.Sprintf("%d", s.AttestedCount)))
	fmt.Fprintf(b, "Non-Attested: %s\n", warningStyle.Render(fmt.Sprintf("%d", s.NonAttestedCount)))
	for _, d := range s.Discrepancies() {
		b.WriteString(warningStyle.Render("! "+d) + "\n")
	}

	b.WriteString("\n" + labelStyle.Render("Attested Users:") + "\n")
	if len(s.AttestedUsers) == 0 {
		b.WriteString("  No users have attested yet.\n")
	}
	for _, u := range s.AttestedUsers {
		fmt.Fprintf(b, "  %s (%s) - Attested at: %s\n", u.Username, u.Email, u.AttestedAt.Format(a.timeFormat, a.loc))
	}

	b.WriteString("\n" + labelStyle.Render("Non-Attested Users:") + "\n")
	if len(s.NonAttestedUsers) == 0 {
		b.WriteString("  All users have attested.\n")
	}
	for _, u := range s.NonAttestedUsers {
		fmt.Fprintf(b, "  %s (%s)\n", u.Username, u.Email)
	}
}

func (a *App) renderLogin() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sign in") + "\n\n")
	b.WriteString(a.login.username.View() + "\n")
	b.WriteString(a.login.password.View() + "\n")
	switch {
	case a.login.busy:
		b.WriteString("\n" + statusStyle.Render("Signing in..."))
	case a.login.err != "":
		b.WriteString("\n" + errorStyle.Render(a.login.err))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) renderInput() string {
	line := a.input.View()
	if len(a.suggestions) == 0 {
		return line
	}
	items := make([]string, len(a.suggestions))
	for i, s := range a.suggestions {
		if i == 0 {
			items[i] = focusStyle.Render(s)
		} else {
			items[i] = mutedStyle.Render(s)
		}
	}
	return line + "\n" + labelStyle.Render("recent: ") + strings.Join(items, mutedStyle.Render(" · "))
}

func (a *App) renderFooter(bindings []key.Binding) string {
	bg := colorMantle
	keyStyle := helpKeyStyle.Background(bg)
	descStyle := helpDescStyle.Background(bg)
	space := lipgloss.NewStyle().Background(bg).Render(" ")
	sep := lipgloss.NewStyle().Background(bg).Render("  ")

	parts := make([]string, 0, len(bindings))
	for _, binding := range bindings {
		help := binding.Help()
		if help.Key == "" && help.Desc == "" {
			continue
		}
		parts = append(parts, keyStyle.Render(help.Key)+space+descStyle.Render(help.Desc))
	}
	content := strings.Join(parts, sep)
	if a.width == 0 {
		return footerStyle.Render(content)
	}
	return footerStyle.Width(a.width).Render(content)
}

func (a *App) renderStatus() string {
	flat := strings.ReplaceAll(a.status, "\n", " ")
	style := statusBarStyle
	if a.statusErr {
		style = style.Foreground(colorError)
	}
	if a.width == 0 {
		return style.Render(flat)
	}
	return style.Width(a.width).Render(flat)
}
