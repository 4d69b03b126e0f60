package update

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/medremind/internal/commands"
	"github.com/sandeepkv93/medremind/internal/scheduler"
	"github.com/sandeepkv93/medremind/internal/views"
)

const clockInterval = time.Second

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{clockTickCmd(m.clock)}
	if m.ctrl != nil {
		cmds = append(cmds, waitForEventCmd(m.ctrl.C()))
	}
	return tea.Batch(cmds...)
}

func clockTickCmd(now func() time.Time) tea.Cmd {
	return tea.Tick(clockInterval, func(time.Time) tea.Msg { return ClockTickMsg{At: now()} })
}

func waitForEventCmd(ch <-chan scheduler.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return SchedulerClosedMsg{}
		}
		return SchedulerEventMsg{Event: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if m.Palette.Active {
			return m.handlePaletteKey(typed)
		}
		switch typed.String() {
		case "/":
			m.Palette.Active = true
			m.Palette.Input = ""
			m.commandInput.Focus()
			m.commandInput.SetValue("")
			m.Status = StatusBar{Text: "command palette active"}
			return m, nil
		case m.Keys.Done:
			return m, m.runCommand(commands.Command{Type: commands.TypeDone, Raw: "done"})
		case m.Keys.Defer:
			return m, m.runCommand(commands.Command{Type: commands.TypeDefer, Raw: "defer"})
		case m.Keys.Regenerate:
			return m, m.runCommand(commands.Command{Type: commands.TypeGenerate, Raw: "generate"})
		case m.Keys.Ledger:
			m.ShowLedger = !m.ShowLedger
			if !m.ShowLedger {
				m.Detail = ""
				return m, nil
			}
			return m, m.runCommand(commands.Command{Type: commands.TypeShow, Raw: "show ledger", Show: &commands.ShowArgs{Subject: commands.SubjectLedger}})
		case "esc":
			m.Detail = ""
			m.ShowLedger = false
			return m, nil
		case m.Keys.Help:
			m.HelpVisible = !m.HelpVisible
			return m, nil
		case "ctrl+c", m.Keys.Quit:
			m.Quitting = true
			return m, tea.Quit
		}
		return m, nil
	case ClockTickMsg:
		m.Now = typed.At.In(m.loc)
		m.refresh()
		return m, clockTickCmd(m.clock)
	case SchedulerEventMsg:
		m.applyEvent(typed.Event)
		m.refresh()
		return m, waitForEventCmd(m.ctrl.C())
	case SchedulerClosedMsg:
		m.Status = StatusBar{Text: "scheduler stopped", IsError: true}
		return m, nil
	case ActionDoneMsg:
		m.Status = StatusBar{Text: typed.Text}
		if typed.Detail != "" {
			m.Detail = typed.Detail
		}
		m.notify("Command", typed.Text, "info")
		m.refresh()
		return m, nil
	case SetStatusMsg:
		m.Status = StatusBar{Text: typed.Text, IsError: typed.IsError}
		return m, nil
	case ClearStatusMsg:
		m.Status = StatusBar{}
		return m, nil
	case AppErrorMsg:
		m.LastError = typed.Err
		if typed.Err != nil {
			m.Status = StatusBar{Text: typed.Err.Error(), IsError: true}
			m.notify("Error", typed.Err.Error(), "error")
		}
		m.refresh()
		return m, nil
	}
	return m, nil
}

func (m *Model) applyEvent(ev scheduler.Event) {
	switch ev.Type {
	case scheduler.EventDisplayed:
		m.Poked = false
		m.alert(views.FormatNotification(ev.Reminder, m.loc))
	case scheduler.EventPoke:
		m.Poked = true
		m.alert(views.FormatNotification(ev.Reminder, m.loc))
	case scheduler.EventCompleted:
		m.notify("Taken", fmt.Sprintf("%s at %s", ev.Reminder.MedicationName, m.formatTime(ev.Reminder.ScheduledAt)), "info")
	case scheduler.EventMissed:
		m.notify("Missed", fmt.Sprintf("%s at %s (%s)", ev.Reminder.MedicationName, m.formatTime(ev.Reminder.ScheduledAt), ev.Reason), "warn")
	case scheduler.EventDeferred:
		m.notify("Deferred", fmt.Sprintf("%s until %s", ev.Reminder.MedicationName, m.formatTime(ev.Reminder.ScheduledAt)), "info")
	case scheduler.EventDeleted:
		m.notify("Removed", fmt.Sprintf("%s at %s", ev.Reminder.MedicationName, m.formatTime(ev.Reminder.ScheduledAt)), "info")
	}
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}
	meridiem := ""
	if !m.clock24h {
		meridiem = m.Now.Format("PM")
	}
	clock := views.RenderClock(views.ClockData{
		Time:     views.FormatClock(m.Now, m.clock24h),
		Meridiem: meridiem,
		Date:     m.Now.Format("Mon Jan 2"),
		Queued:   len(m.Queue),
		Ledger:   len(m.Ledger),
	})

	items := make([]views.QueueItemData, 0, len(m.Queue))
	for _, r := range m.Queue {
		items = append(items, views.QueueItemData{
			PrescriptionID: r.PrescriptionID,
			Medication:     r.MedicationName,
			At:             m.formatTime(r.ScheduledAt),
			State:          string(r.State),
			Defers:         r.DeferCount,
		})
	}
	queue := views.RenderQueuePanel(views.QueuePanelData{TableView: m.queueTable.View(), Items: items})

	notification := ""
	if m.Active != nil {
		notification = views.RenderNotificationPanel(views.NotificationPanelData{
			Active:    true,
			Prompt:    views.FormatNotification(*m.Active, m.loc),
			Defers:    m.Active.DeferCount,
			MaxDefers: m.maxDefers,
			Poked:     m.Poked,
		})
	}

	detail := m.Detail
	if m.Palette.Active {
		detail = views.RenderCommandPalette(true, m.commandInput.View())
	} else if m.HelpVisible {
		detail = m.renderHelpView()
	} else if detail == "" {
		detail = views.RenderLog(m.recentLog(5))
	}

	status := ""
	if m.Status.Text != "" {
		status = "status: " + m.Status.Text
	}
	return views.RenderApp(views.AppData{
		Header:       "medremind",
		Clock:        clock,
		Queue:        queue,
		Notification: notification,
		Detail:       detail,
		StatusLine:   status,
		StatusError:  m.Status.IsError,
		Footer: fmt.Sprintf("keys: %s done | %s defer | %s regenerate | %s ledger | / cmd | %s help | %s quit",
			m.Keys.Done, m.Keys.Defer, m.Keys.Regenerate, m.Keys.Ledger, m.Keys.Help, m.Keys.Quit),
	})
}

func (m Model) recentLog(n int) []views.LogLine {
	start := len(m.Notifications) - n
	if start < 0 {
		start = 0
	}
	out := make([]views.LogLine, 0, n)
	for _, note := range m.Notifications[start:] {
		out = append(out, views.LogLine{
			At:    m.formatTime(note.At),
			Level: note.Level,
			Body:  note.Title + ": " + note.Body,
		})
	}
	return out
}
