package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

type Action string

const (
	actionQuit          Action = "quit"
	actionPolicies      Action = "policies"
	actionNotifications Action = "notifications"
	actionReports       Action = "reports"
	actionReload        Action = "reload"
	actionLogout        Action = "logout"
	actionNavigate      Action = "navigate"
	actionUp            Action = "up"
	actionDown          Action = "down"
	actionOpen          Action = "open"
	actionSearch        Action = "search"
	actionClearSearch   Action = "clear_search"
	actionBack          Action = "back"
	actionMarkRead      Action = "mark_read"
	actionVersion       Action = "version"
	actionConfirm       Action = "confirm"
	actionComplete      Action = "complete"
	actionCancel        Action = "cancel"
	actionNextField     Action = "next_field"
	actionPrevField     Action = "prev_field"
)

type scope string

const (
	scopeGlobal        scope = "global"
	scopePolicies      scope = "policies"
	scopeDetail        scope = "detail"
	scopeNotifications scope = "notifications"
	scopeReports       scope = "reports"
	scopeInput         scope = "input"
	scopeLogin         scope = "login"
)

type binding struct {
	action  Action
	binding key.Binding
	// hidden bindings match but stay out of the footer
	hidden bool
}

// KeyRegistry maps key presses to actions per scope. Lookups fall back to
// the global scope except where a scope captures text input.
type KeyRegistry struct {
	scopes map[scope][]binding
}

func NewKeyRegistry() *KeyRegistry {
	r := &KeyRegistry{scopes: map[scope][]binding{}}
	reg := func(s scope, a Action, keys []string, help string) {
		r.scopes[s] = append(r.scopes[s], binding{
			action:  a,
			binding: key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], help)),
		})
	}
	hide := func(s scope, a Action, keys ...string) {
		r.scopes[s] = append(r.scopes[s], binding{action: a, binding: key.NewBinding(key.WithKeys(keys...)), hidden: true})
	}
	nav := func(s scope) {
		r.scopes[s] = append(r.scopes[s], binding{
			action:  actionNavigate,
			binding: key.NewBinding(key.WithKeys(), key.WithHelp("j/k", "navigate")),
		})
		hide(s, actionUp, "k", "up")
		hide(s, actionDown, "j", "down")
	}

	reg(scopeGlobal, actionPolicies, []string{"1"}, "policies")
	reg(scopeGlobal, actionNotifications, []string{"2"}, "notifications")
	reg(scopeGlobal, actionReports, []string{"3"}, "reports")
	reg(scopeGlobal, actionReload, []string{"r"}, "reload")
	reg(scopeGlobal, actionQuit, []string{"q", "ctrl+c"}, "quit")

	nav(scopePolicies)
	reg(scopePolicies, actionOpen, []string{"enter"}, "open")
	reg(scopePolicies, actionSearch, []string{"/"}, "search")
	reg(scopePolicies, actionClearSearch, []string{"x"}, "clear search")
	reg(scopePolicies, actionLogout, []string{"L"}, "logout")

	reg(scopeDetail, actionBack, []string{"esc", "backspace"}, "back")

	nav(scopeNotifications)
	reg(scopeNotifications, actionMarkRead, []string{"enter", "m"}, "mark read")

	reg(scopeReports, actionVersion, []string{"v", "/"}, "attestation")

	reg(scopeInput, actionConfirm, []string{"enter"}, "submit")
	reg(scopeInput, actionComplete, []string{"tab"}, "complete")
	reg(scopeInput, actionCancel, []string{"esc"}, "cancel")
	hide(scopeInput, actionQuit, "ctrl+c")

	reg(scopeLogin, actionNextField, []string{"tab", "down"}, "next field")
	hide(scopeLogin, actionPrevField, "shift+tab", "up")
	reg(scopeLogin, actionConfirm, []string{"enter"}, "sign in")
	reg(scopeLogin, actionQuit, []string{"ctrl+c"}, "quit")
	return r
}

// capturing scopes receive printable keys, so global shortcuts are off.
func capturing(s scope) bool { return s == scopeInput || s == scopeLogin }

// Match returns the action bound to the key named k in s.
func (r *KeyRegistry) Match(k string, s scope) Action {
	if a := r.matchIn(k, s); a != "" {
		return a
	}
	if capturing(s) || s == scopeGlobal {
		return ""
	}
	return r.matchIn(k, scopeGlobal)
}

func (r *KeyRegistry) matchIn(k string, s scope) Action {
	for _, b := range r.scopes[s] {
		for _, bk := range b.binding.Keys() {
			if bk == k {
				return b.action
			}
		}
	}
	return ""
}

// HelpBindings lists the footer bindings for s, followed by the global ones
// when s does not capture input.
func (r *KeyRegistry) HelpBindings(s scope) []key.Binding {
	var out []key.Binding
	add := func(s scope) {
		for _, b := range r.scopes[s] {
			if !b.hidden {
				out = append(out, b.binding)
			}
		}
	}
	add(s)
	if !capturing(s) && s != scopeGlobal {
		add(scopeGlobal)
	}
	return out
}
