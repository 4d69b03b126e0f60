package views

import (
	"fmt"
	"strings"
)

type ClockData struct {
	Time     string
	Meridiem string
	Date     string
	Queued   int
	Ledger   int
}

type QueueItemData struct {
	PrescriptionID string
	Medication     string
	At             string
	State          string
	Defers         int
}

type QueuePanelData struct {
	TableView string
	Items     []QueueItemData
}

type NotificationPanelData struct {
	Active    bool
	Prompt    string
	Defers    int
	MaxDefers int
	Poked     bool
}

type HelpPanelData struct {
	Bindings []string
	HelpView string
}

type LogLine struct {
	At    string
	Level string
	Body  string
}

func RenderClock(data ClockData) string {
	clock := data.Time
	if data.Meridiem != "" {
		clock += " " + data.Meridiem
	}
	return fmt.Sprintf("%s\n%s\nqueued: %d  fired: %d", clock, data.Date, data.Queued, data.Ledger)
}

func RenderQueuePanel(data QueuePanelData) string {
	var b strings.Builder
	b.WriteString("what's next:\n")
	if len(data.Items) == 0 {
		b.WriteString("(nothing scheduled)")
		return b.String()
	}
	if data.TableView != "" {
		b.WriteString(data.TableView)
		return strings.TrimSpace(b.String())
	}
	for _, item := range data.Items {
		b.WriteString(fmt.Sprintf("- %s %s [%s]\n", item.At, item.Medication, item.State))
	}
	return strings.TrimSpace(b.String())
}

func RenderNotificationPanel(data NotificationPanelData) string {
	if !data.Active {
		return ""
	}
	var b strings.Builder
	if data.Poked {
		b.WriteString("(!) ")
	}
	b.WriteString(data.Prompt + "\n")
	b.WriteString(fmt.Sprintf("[d]one  [f]defer (%d/%d)", data.Defers, data.MaxDefers))
	return b.String()
}

func RenderCommandPalette(active bool, input string) string {
	if !active {
		return ""
	}
	return fmt.Sprintf("command: %s", input)
}

func RenderLog(lines []LogLine) string {
	if len(lines) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("recent:\n")
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("%s [%s] %s\n", l.At, strings.ToUpper(l.Level), l.Body))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func RenderHelpPanel(data HelpPanelData) string {
	return fmt.Sprintf("help:\n%s\n%s", strings.Join(data.Bindings, "\n"), data.HelpView)
}
