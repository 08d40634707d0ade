package tui

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jask/powerpolicy/internal/api"
	"github.com/jask/powerpolicy/internal/auth"
	"github.com/jask/powerpolicy/internal/config"
	"github.com/jask/powerpolicy/internal/database/repository"
	"github.com/jask/powerpolicy/internal/screen"
	"github.com/jask/powerpolicy/internal/service"
	"github.com/jask/powerpolicy/internal/session"
)

const maxSuggestions = 5

// Deps are the collaborators the App drives.
type Deps struct {
	Session session.Store
	API     screen.Caller
	Auth    auth.Flow
	// Recall is optional; without it nothing is remembered or suggested.
	Recall *service.RecallService
	Log    *zap.Logger
	UI     config.UIConfig
}

// App ties together views.
type App struct {
	ctx        context.Context
	deps       Deps
	log        *zap.Logger
	keys       *KeyRegistry
	loc        *time.Location
	dateFormat string
	timeFormat string

	state appState
	// where a successful sign-in returns to
	back appState

	list    *screen.PolicyList
	detail  *screen.PolicyDetail
	notes   *screen.Notifications
	reports *screen.Reports

	policyCursor int
	noteCursor   int

	input       textinput.Model
	inputKind   string
	suggestions []string

	login loginForm

	status    string
	statusErr bool
	width     int

	// values whose results arrived, waiting to be written to recall history
	toRecall []recallItem
}

type appState string

const (
	viewPolicies      appState = "policies"
	viewDetail        appState = "detail"
	viewNotifications appState = "notifications"
	viewReports       appState = "reports"
	viewLogin         appState = "login"
)

type landedMsg struct{ land screen.Landing }

type signedInMsg struct {
	user  string
	token string
	err   error
}

type suggestMsg struct {
	kind  string
	input string
	items []string
}

type recallItem struct{ kind, value string }

func New(ctx context.Context, deps Deps) *App {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	dateFormat := deps.UI.DateFormat
	if dateFormat == "" {
		dateFormat = "2006-01-02"
	}
	timeFormat := deps.UI.TimeFormat
	if timeFormat == "" {
		timeFormat = "2006-01-02 15:04"
	}
	return &App{
		ctx:        ctx,
		deps:       deps,
		log:        log.Named("tui"),
		keys:       NewKeyRegistry(),
		loc:        deps.UI.Location(),
		dateFormat: dateFormat,
		timeFormat: timeFormat,
		back:       viewPolicies,
		login:      newLoginForm(),
	}
}

func (a *App) Init() tea.Cmd {
	return a.open(viewPolicies)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
	case tea.KeyMsg:
		if a.state == viewLogin {
			return a.handleLoginKey(m)
		}
		if a.inputKind != "" {
			return a.handleInputKey(m)
		}
		return a.handleKey(m)
	case landedMsg:
		step := m.land()
		a.clampCursors()
		return a, tea.Batch(a.issue(step), a.flushRecall())
	case signedInMsg:
		a.login.busy = false
		if m.err != nil {
			a.login.err = loginError(m.err)
			a.login.password.SetValue("")
			return a, nil
		}
		a.deps.Session.Set(m.token)
		a.log.Info("signed in", zap.String("user", m.user))
		a.setStatus(fmt.Sprintf("Signed in as %s.", m.user), false)
		return a, a.open(a.back)
	case suggestMsg:
		if m.kind == a.inputKind && m.input == a.input.Value() {
			a.suggestions = m.items
		}
	}
	return a, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.keys.Match(m.String(), a.scope()) {
	case actionQuit:
		return a, tea.Quit
	case actionPolicies:
		if a.state == viewDetail {
			a.closeDetail()
			return a, nil
		}
		return a, a.open(viewPolicies)
	case actionNotifications:
		return a, a.open(viewNotifications)
	case actionReports:
		return a, a.open(viewReports)
	case actionReload:
		return a, a.reload()
	case actionLogout:
		cmd := a.issue(a.list.Logout())
		a.setStatus("Signed out.", false)
		return a, cmd
	case actionUp:
		a.move(-1)
	case actionDown:
		a.move(1)
	case actionOpen:
		if p, ok := a.selectedPolicy(); ok {
			return a, a.openDetail(p)
		}
	case actionSearch:
		return a, a.openInput(repository.KindSearch, "Search: ", a.list.Query())
	case actionClearSearch:
		if a.list.Query() != "" {
			a.policyCursor = 0
			return a, a.issue(a.list.Search(""))
		}
	case actionBack:
		a.closeDetail()
	case actionMarkRead:
		if n, ok := a.selectedNotification(); ok && !n.Read {
			return a, a.issue(a.notes.MarkRead(n.ID))
		}
	case actionVersion:
		return a, a.openInput(repository.KindVersion, "Policy version ID: ", "")
	}
	return a, nil
}

func (a *App) handleInputKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.keys.Match(m.String(), scopeInput) {
	case actionQuit:
		return a, tea.Quit
	case actionCancel:
		a.closeInput()
		return a, nil
	case actionComplete:
		if len(a.suggestions) == 0 {
			return a, nil
		}
		a.input.SetValue(a.suggestions[0])
		a.input.CursorEnd()
		return a, a.suggestCmd()
	case actionConfirm:
		kind, value := a.inputKind, a.input.Value()
		a.closeInput()
		switch kind {
		case repository.KindSearch:
			a.policyCursor = 0
			return a, a.issue(a.list.Search(value))
		case repository.KindVersion:
			return a, a.issue(a.reports.LookupAttestation(value))
		}
		return a, nil
	}

	before := a.input.Value()
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(m)
	if a.input.Value() != before {
		a.suggestions = nil
		return a, tea.Batch(cmd, a.suggestCmd())
	}
	return a, cmd
}

func (a *App) handleLoginKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.keys.Match(m.String(), scopeLogin) {
	case actionQuit:
		return a, tea.Quit
	case actionNextField:
		return a, a.login.cycle(1)
	case actionPrevField:
		return a, a.login.cycle(-1)
	case actionConfirm:
		if a.login.busy {
			return a, nil
		}
		if a.login.focus == fieldUsername {
			return a, a.login.cycle(1)
		}
		user, pass := a.login.values()
		if user == "" || pass == "" {
			a.login.err = "Username and password are required"
			return a, nil
		}
		a.login.busy = true
		a.login.err = ""
		return a, a.signInCmd(user, pass)
	}
	return a, a.login.update(m)
}

// open leaves the current screen and activates a fresh controller for s.
func (a *App) open(s appState) tea.Cmd {
	if s == a.state && s != viewLogin {
		return nil
	}
	a.leave()
	var step screen.Step
	switch s {
	case viewNotifications:
		a.state = viewNotifications
		a.notes = screen.NewNotifications(a.deps.Session, a.deps.API)
		a.noteCursor = 0
		step = a.notes.Activate()
	case viewReports:
		a.state = viewReports
		a.reports = screen.NewReports(a.deps.Session, a.deps.API)
		a.reports.OnLookup = func(id int64) {
			a.remember(repository.KindVersion, strconv.FormatInt(id, 10))
		}
		step = a.reports.Activate()
	default:
		a.state = viewPolicies
		a.list = screen.NewPolicyList(a.deps.Session, a.deps.API)
		a.list.OnSearch = func(term string) { a.remember(repository.KindSearch, term) }
		a.policyCursor = 0
		step = a.list.Activate()
	}
	return a.issue(step)
}

// openDetail stacks the detail screen over the list. The list stays active
// so going back does not refetch it.
func (a *App) openDetail(p api.Policy) tea.Cmd {
	a.detail = screen.NewPolicyDetail(a.deps.Session, a.deps.API)
	a.state = viewDetail
	return a.issue(a.detail.Show(p.ID))
}

func (a *App) closeDetail() {
	if a.detail != nil {
		a.detail.Deactivate()
		a.detail = nil
	}
	a.state = viewPolicies
}

func (a *App) leave() {
	a.closeInput()
	if a.detail != nil {
		a.detail.Deactivate()
		a.detail = nil
	}
	if a.list != nil {
		a.list.Deactivate()
		a.list = nil
	}
	if a.notes != nil {
		a.notes.Deactivate()
		a.notes = nil
	}
	if a.reports != nil {
		a.reports.Deactivate()
		a.reports = nil
	}
}

// issue turns a controller step into a command. A hand-off shows the login
// screen instead.
func (a *App) issue(step screen.Step) tea.Cmd {
	if step.Outcome == screen.HandOff {
		return a.handOff()
	}
	if step.Next == nil {
		return nil
	}
	next, ctx := step.Next, a.ctx
	return func() tea.Msg { return landedMsg{land: next(ctx)} }
}

func (a *App) handOff() tea.Cmd {
	if a.state == viewLogin {
		return nil
	}
	back := a.state
	if back == viewDetail {
		back = viewPolicies
	}
	a.leave()
	a.back = back
	a.state = viewLogin
	a.login = newLoginForm()
	a.setStatus("Please sign in.", false)
	a.log.Info("session required", zap.String("return_to", string(back)))
	return a.login.focusField(fieldUsername)
}

func (a *App) reload() tea.Cmd {
	switch a.state {
	case viewPolicies:
		return a.issue(a.list.Reload())
	case viewDetail:
		return a.issue(a.detail.Reload())
	case viewNotifications:
		return a.issue(a.notes.Reload())
	case viewReports:
		return a.issue(a.reports.ReloadSummary())
	}
	return nil
}

func (a *App) signInCmd(user, pass string) tea.Cmd {
	flow, ctx := a.deps.Auth, a.ctx
	return func() tea.Msg {
		tok, err := flow.Login(ctx, user, pass)
		return signedInMsg{user: user, token: tok, err: err}
	}
}

func loginError(err error) string {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return "Incorrect username or password"
	}
	return err.Error()
}

func (a *App) openInput(kind, prompt, value string) tea.Cmd {
	ti := textinput.New()
	ti.Prompt = prompt
	ti.CharLimit = 200
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.SetValue(value)
	a.input = ti
	a.inputKind = kind
	a.suggestions = nil
	return tea.Batch(a.input.Focus(), a.suggestCmd())
}

func (a *App) closeInput() {
	a.input.Blur()
	a.inputKind = ""
	a.suggestions = nil
}

func (a *App) suggestCmd() tea.Cmd {
	if a.deps.Recall == nil || a.inputKind == "" {
		return nil
	}
	recall, ctx, log := a.deps.Recall, a.ctx, a.log
	kind, input := a.inputKind, a.input.Value()
	return func() tea.Msg {
		items, err := recall.Suggest(ctx, kind, input, maxSuggestions)
		if err != nil {
			log.Warn("recall suggest failed", zap.String("kind", kind), zap.Error(err))
			return nil
		}
		return suggestMsg{kind: kind, input: input, items: items}
	}
}

func (a *App) remember(kind, value string) {
	a.toRecall = append(a.toRecall, recallItem{kind: kind, value: value})
}

func (a *App) flushRecall() tea.Cmd {
	if a.deps.Recall == nil || len(a.toRecall) == 0 {
		a.toRecall = nil
		return nil
	}
	items := a.toRecall
	a.toRecall = nil
	recall, ctx, log := a.deps.Recall, a.ctx, a.log
	return func() tea.Msg {
		for _, it := range items {
			if err := recall.Record(ctx, it.kind, it.value); err != nil {
				log.Warn("recall record failed", zap.String("kind", it.kind), zap.Error(err))
			}
		}
		return nil
	}
}

func (a *App) setStatus(s string, isErr bool) {
	a.status = s
	a.statusErr = isErr
}

func (a *App) scope() scope {
	switch {
	case a.state == viewLogin:
		return scopeLogin
	case a.inputKind != "":
		return scopeInput
	case a.state == viewDetail:
		return scopeDetail
	case a.state == viewNotifications:
		return scopeNotifications
	case a.state == viewReports:
		return scopeReports
	default:
		return scopePolicies
	}
}

func (a *App) selectedPolicy() (api.Policy, bool) {
	if a.list == nil {
		return api.Policy{}, false
	}
	list, _ := a.list.State().Data()
	if a.policyCursor < 0 || a.policyCursor >= len(list) {
		return api.Policy{}, false
	}
	return list[a.policyCursor], true
}

func (a *App) selectedNotification() (api.Notification, bool) {
	if a.notes == nil {
		return api.Notification{}, false
	}
	list, _ := a.notes.State().Data()
	if a.noteCursor < 0 || a.noteCursor >= len(list) {
		return api.Notification{}, false
	}
	return list[a.noteCursor], true
}

func (a *App) move(delta int) {
	switch a.state {
	case viewPolicies:
		a.policyCursor += delta
	case viewNotifications:
		a.noteCursor += delta
	}
	a.clampCursors()
}

func (a *App) clampCursors() {
	if a.list != nil {
		list, _ := a.list.State().Data()
		a.policyCursor = clamp(a.policyCursor, len(list))
	}
	if a.notes != nil {
		list, _ := a.notes.State().Data()
		a.noteCursor = clamp(a.noteCursor, len(list))
	}
}

func clamp(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
