package update

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/medremind/internal/commands"
	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/views"
)

// ActionDoneMsg reports a command that ran against the scheduler.
type ActionDoneMsg struct {
	Text   string
	Detail string
}

func (m Model) handlePaletteKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closePalette()
		m.Status = StatusBar{Text: "command palette closed"}
		return m, nil
	case "enter":
		m.Palette.Input = m.commandInput.Value()
		return m.executePaletteCommand()
	default:
		if msg.Type == tea.KeyRunes {
			m.commandInput.SetValue(m.commandInput.Value() + string(msg.Runes))
			m.Palette.Input = m.commandInput.Value()
			return m, nil
		}
		var cmd tea.Cmd
		m.commandInput, cmd = m.commandInput.Update(msg)
		m.Palette.Input = m.commandInput.Value()
		return m, cmd
	}
}

func (m *Model) closePalette() {
	m.Palette.Active = false
	m.Palette.Input = ""
	m.commandInput.SetValue("")
	m.commandInput.Blur()
}

func (m Model) executePaletteCommand() (Model, tea.Cmd) {
	raw := strings.TrimSpace(m.Palette.Input)
	m.closePalette()
	cmd, err := commands.Parse(raw)
	if err != nil {
		m.Status = StatusBar{Text: err.Error(), IsError: true}
		return m, nil
	}
	return m, m.runCommand(cmd)
}

// runCommand executes cmd off the UI goroutine; the runner persists and
// reports as part of each action.
func (m Model) runCommand(cmd commands.Command) tea.Cmd {
	ctrl, ctx, loc, clock24h := m.ctrl, m.ctx, m.loc, m.clock24h
	if ctrl == nil {
		return func() tea.Msg {
			return AppErrorMsg{Err: fmt.Errorf("%s: scheduler not configured", cmd.Type)}
		}
	}
	return func() tea.Msg {
		var detail string
		res, err := commands.Execute(cmd, handlers(ctx, ctrl, loc, clock24h, &detail))
		if err != nil {
			return AppErrorMsg{Err: err}
		}
		return ActionDoneMsg{Text: res.Message, Detail: detail}
	}
}

func handlers(ctx context.Context, ctrl Controller, loc *time.Location, clock24h bool, detail *string) commands.Handlers {
	displayed := func() (model.Reminder, error) {
		for _, r := range ctrl.Snapshot().Queue {
			if r.State == model.StateDisplayed {
				return r, nil
			}
		}
		return model.Reminder{}, &commands.CommandError{Code: commands.ErrCodeInvalidArgument, Message: "no reminder is showing"}
	}
	return commands.Handlers{
		Done: func() (commands.Result, error) {
			r, err := displayed()
			if err != nil {
				return commands.Result{}, err
			}
			if err := ctrl.Complete(ctx); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("marked %s as taken", r.MedicationName)}, nil
		},
		Defer: func() (commands.Result, error) {
			r, err := displayed()
			if err != nil {
				return commands.Result{}, err
			}
			if err := ctrl.Defer(ctx); err != nil {
				return commands.Result{}, err
			}
			if r.DeferCount+1 > ctrl.Options().DeferThreshold {
				return commands.Result{Message: fmt.Sprintf("%s deferred too many times, marked missed", r.MedicationName)}, nil
			}
			return commands.Result{Message: fmt.Sprintf("%s deferred for %s", r.MedicationName, r.DeferInterval)}, nil
		},
		Delete: func(a commands.DeleteArgs) (commands.Result, error) {
			if err := ctrl.Delete(ctx, a.PrescriptionID); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("removed reminders for %s", a.PrescriptionID)}, nil
		},
		Generate: func() (commands.Result, error) {
			if err := ctrl.Generate(ctx); err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("regenerated, %d queued", len(ctrl.Snapshot().Queue))}, nil
		},
		Purge: func() (commands.Result, error) {
			n, err := ctrl.Purge(ctx)
			if err != nil {
				return commands.Result{}, err
			}
			return commands.Result{Message: fmt.Sprintf("purged %d ledger entries", n)}, nil
		},
		Show: func(s commands.ShowArgs) (commands.Result, error) {
			snap := ctrl.Snapshot()
			switch s.Subject {
			case commands.SubjectLedger:
				*detail = views.RenderMarkdown(ledgerMarkdown(snap.Ledger))
				return commands.Result{Message: fmt.Sprintf("ledger: %d entries", len(snap.Ledger))}, nil
			default:
				*detail = views.RenderMarkdown(queueMarkdown(snap.Queue, loc, clock24h))
				return commands.Result{Message: fmt.Sprintf("queue: %d reminders", len(snap.Queue))}, nil
			}
		},
	}
}
