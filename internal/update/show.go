package update

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

func queueMarkdown(queue []model.Reminder, loc *time.Location, clock24h bool) string {
	if len(queue) == 0 {
		return "_queue is empty_"
	}
	layout := "Mon 3:04 PM"
	if clock24h {
		layout = "Mon 15:04"
	}
	var b strings.Builder
	b.WriteString("| When | Prescription | Medication | State | Defers |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range queue {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
			r.ScheduledAt.In(loc).Format(layout), r.PrescriptionID, r.MedicationName, r.State, r.DeferCount)
	}
	return b.String()
}

func ledgerMarkdown(entries []model.LedgerEntry) string {
	if len(entries) == 0 {
		return "_ledger is empty_"
	}
	var b strings.Builder
	b.WriteString("| Fingerprint | Recorded |\n")
	b.WriteString("|---|---|\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "| `%s` | %s |\n", e.Fingerprint, e.RecordedAt.Local().Format(time.DateTime))
	}
	return b.String()
}
