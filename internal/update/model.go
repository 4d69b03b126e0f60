package update

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/sandeepkv93/medremind/internal/model"
	"github.com/sandeepkv93/medremind/internal/scheduler"
)

// Controller is the part of scheduler.Runner the device UI drives.
type Controller interface {
	C() <-chan scheduler.Event
	Snapshot() scheduler.Snapshot
	Options() scheduler.Options
	Complete(ctx context.Context) error
	Defer(ctx context.Context) error
	Delete(ctx context.Context, prescriptionID string) error
	Generate(ctx context.Context) error
	Purge(ctx context.Context) (int, error)
}

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	Done       string
	Defer      string
	Regenerate string
	Ledger     string
	Help       string
	Quit       string
}

type Config struct {
	Clock24h             bool
	DesktopNotifications bool
	Location             *time.Location
}

type Model struct {
	Now           time.Time
	Queue         []model.Reminder
	Ledger        []model.LedgerEntry
	Active        *model.Reminder
	Poked         bool
	Palette       CommandPaletteState
	HelpVisible   bool
	ShowLedger    bool
	Detail        string
	Notifications []Notification
	Status        StatusBar
	Keys          GlobalKeyMap
	Quitting      bool
	LastError     error

	ctrl           Controller
	ctx            context.Context
	clock          func() time.Time
	loc            *time.Location
	clock24h       bool
	maxDefers      int
	desktopEnabled bool
	notifier       DesktopNotifier

	queueTable   table.Model
	commandInput textinput.Model
	helpModel    help.Model
}

type CommandPaletteState struct {
	Active bool
	Input  string
}

type Notification struct {
	Title string
	Body  string
	Level string
	At    time.Time
}

type DesktopNotifier interface {
	Send(Notification) error
}

type NoopDesktopNotifier struct{}

func (NoopDesktopNotifier) Send(Notification) error { return nil }

type ExecDesktopNotifier struct{}

func (ExecDesktopNotifier) Send(n Notification) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("notify-send", "-u", "critical", n.Title, n.Body).Run()
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(n.Body), escapeAppleScript(n.Title))
		return exec.Command("osascript", "-e", script).Run()
	default:
		return nil
	}
}

func escapeAppleScript(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

type SetStatusMsg struct {
	Text    string
	IsError bool
}

type ClearStatusMsg struct{}

type AppErrorMsg struct {
	Err error
}

type ClockTickMsg struct {
	At time.Time
}

type SchedulerEventMsg struct {
	Event scheduler.Event
}

// SchedulerClosedMsg arrives once the runner's event channel is closed.
type SchedulerClosedMsg struct{}

type Option func(*Model)

func WithNotifier(n DesktopNotifier) Option {
	return func(m *Model) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.clock = now }
}

func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

func NewModel(ctrl Controller, cfg Config, opts ...Option) Model {
	m := Model{
		ctrl:           ctrl,
		ctx:            context.Background(),
		clock:          time.Now,
		loc:            cfg.Location,
		clock24h:       cfg.Clock24h,
		desktopEnabled: cfg.DesktopNotifications,
		notifier:       NoopDesktopNotifier{},
		Keys: GlobalKeyMap{
			Done:       "d",
			Defer:      "f",
			Regenerate: "r",
			Ledger:     "l",
			Help:       "?",
			Quit:       "q",
		},
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	for _, opt := range opts {
		opt(&m)
	}
	if ctrl != nil {
		m.maxDefers = ctrl.Options().DeferThreshold
	}
	m.initBubbleComponents()
	m.Now = m.clock().In(m.loc)
	m.refresh()
	return m
}

func (m *Model) initBubbleComponents() {
	cols := []table.Column{
		{Title: "Time", Width: 9},
		{Title: "Medication", Width: 22},
		{Title: "Dose", Width: 10},
		{Title: "State", Width: 10},
		{Title: "Defers", Width: 6},
	}
	m.queueTable = table.New(table.WithColumns(cols), table.WithRows([]table.Row{}), table.WithHeight(8))

	m.commandInput = textinput.New()
	m.commandInput.Prompt = "/"
	m.commandInput.CharLimit = 128
	m.commandInput.Width = 48

	m.helpModel = help.New()
}

// refresh pulls the current queue from the controller. The active reminder
// is whichever one the scheduler has in the displayed state.
func (m *Model) refresh() {
	if m.ctrl == nil {
		return
	}
	snap := m.ctrl.Snapshot()
	m.Queue = snap.Queue
	m.Ledger = snap.Ledger
	var active *model.Reminder
	for i := range m.Queue {
		if m.Queue[i].State == model.StateDisplayed {
			r := m.Queue[i]
			active = &r
			break
		}
	}
	if active == nil || m.Active == nil || active.Fingerprint() != m.Active.Fingerprint() {
		m.Poked = false
	}
	m.Active = active
	m.syncQueueTable()
}

func (m *Model) syncQueueTable() {
	rows := make([]table.Row, 0, len(m.Queue))
	for _, r := range m.Queue {
		rows = append(rows, table.Row{
			m.formatTime(r.ScheduledAt),
			r.MedicationName,
			strings.TrimSpace(r.Dose + " " + r.Unit),
			string(r.State),
			fmt.Sprintf("%d", r.DeferCount),
		})
	}
	m.queueTable.SetRows(rows)
}

func (m Model) formatTime(t time.Time) string {
	if m.clock24h {
		return t.In(m.loc).Format("15:04")
	}
	return t.In(m.loc).Format("3:04 PM")
}

func (m *Model) notify(title, body, level string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	n := Notification{
		Title: title,
		Body:  body,
		Level: level,
		At:    m.clock(),
	}
	m.Notifications = append(m.Notifications, n)
	if len(m.Notifications) > 20 {
		m.Notifications = m.Notifications[len(m.Notifications)-20:]
	}
}

// alert surfaces a reminder outside the terminal as well.
func (m *Model) alert(body string) {
	m.notify("Medication reminder", body, "alert")
	if m.desktopEnabled && m.notifier != nil {
		_ = m.notifier.Send(Notification{Title: "Medication reminder", Body: body, Level: "alert", At: m.clock()})
	}
}
