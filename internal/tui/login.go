package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	fieldUsername = iota
	fieldPassword
	fieldCount
)

type loginForm struct {
	username textinput.Model
	password textinput.Model
	focus    int
	busy     bool
	err      string
}

func newLoginForm() loginForm {
	field := func(prompt string) textinput.Model {
		ti := textinput.New()
		ti.Prompt = prompt
		ti.CharLimit = 128
		ti.Cursor.SetMode(cursor.CursorStatic)
		return ti
	}
	f := loginForm{
		username: field("Username: "),
		password: field("Password: "),
	}
	f.password.EchoMode = textinput.EchoPassword
	f.password.EchoCharacter = '•'
	f.username.Focus()
	return f
}

func (f *loginForm) focusField(i int) tea.Cmd {
	f.focus = i
	if i == fieldUsername {
		f.password.Blur()
		return f.username.Focus()
	}
	f.username.Blur()
	return f.password.Focus()
}

func (f *loginForm) cycle(delta int) tea.Cmd {
	return f.focusField(((f.focus+delta)%fieldCount + fieldCount) % fieldCount)
}

func (f *loginForm) update(m tea.KeyMsg) tea.Cmd {
	if f.busy {
		return nil
	}
	var cmd tea.Cmd
	if f.focus == fieldUsername {
		f.username, cmd = f.username.Update(m)
	} else {
		f.password, cmd = f.password.Update(m)
	}
	return cmd
}

func (f loginForm) values() (string, string) {
	return strings.TrimSpace(f.username.Value()), f.password.Value()
}
