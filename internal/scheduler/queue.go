package scheduler

import (
	"container/heap"
	"slices"
	"time"

	"github.com/sandeepkv93/medremind/internal/model"
)

type queueItem struct {
	reminder model.Reminder
	seq      uint64
	index    int
}

// before orders by scheduled time, ties broken by insertion sequence.
func (a *queueItem) before(b *queueItem) bool {
	if !a.reminder.ScheduledAt.Equal(b.reminder.ScheduledAt) {
		return a.reminder.ScheduledAt.Before(b.reminder.ScheduledAt)
	}
	return a.seq < b.seq
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].before(pq[j])
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// Queue holds every live reminder ordered ascending by scheduled time. Like
// Ledger it relies on the owning Scheduler for synchronization.
type Queue struct {
	items priorityQueue
	seq   uint64
}

func NewQueue() *Queue {
	return &Queue{items: make(priorityQueue, 0)}
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) Push(r model.Reminder) {
	q.seq++
	heap.Push(&q.items, &queueItem{reminder: r, seq: q.seq})
}

// Merge admits each candidate whose fingerprint the ledger has not seen,
// recording it as it goes, and returns the admitted reminders in input order.
func (q *Queue) Merge(candidates []model.Reminder, ledger *Ledger, now time.Time) []model.Reminder {
	admitted := make([]model.Reminder, 0, len(candidates))
	for _, c := range candidates {
		fp := c.Fingerprint()
		if !ledger.ShouldAdmit(fp) {
			continue
		}
		ledger.Record(fp, now)
		q.Push(c)
		admitted = append(admitted, c)
	}
	return admitted
}

func (q *Queue) Peek() (model.Reminder, bool) {
	if len(q.items) == 0 {
		return model.Reminder{}, false
	}
	return q.items[0].reminder, true
}

func (q *Queue) Pop() (model.Reminder, bool) {
	if len(q.items) == 0 {
		return model.Reminder{}, false
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.reminder, true
}

// RemoveAll strips every reminder for prescriptionID and returns them in
// queue order.
func (q *Queue) RemoveAll(prescriptionID string) []model.Reminder {
	var doomed []*queueItem
	for _, item := range q.sorted() {
		if item.reminder.PrescriptionID == prescriptionID {
			doomed = append(doomed, item)
		}
	}
	out := make([]model.Reminder, 0, len(doomed))
	for _, item := range doomed {
		q.remove(item)
		out = append(out, item.reminder)
	}
	return out
}

// Items returns a copy of the queue in ascending order.
func (q *Queue) Items() []model.Reminder {
	sorted := q.sorted()
	out := make([]model.Reminder, len(sorted))
	for i, item := range sorted {
		out[i] = item.reminder
	}
	return out
}

func (q *Queue) sorted() []*queueItem {
	out := slices.Clone([]*queueItem(q.items))
	slices.SortFunc(out, func(a, b *queueItem) int {
		switch {
		case a.before(b):
			return -1
		case b.before(a):
			return 1
		}
		return 0
	})
	return out
}

func (q *Queue) remove(item *queueItem) {
	if item.index < 0 || item.index >= len(q.items) || q.items[item.index] != item {
		return
	}
	heap.Remove(&q.items, item.index)
}

// rearm moves item to a new scheduled time and treats it as freshly inserted
// for tie-breaking.
func (q *Queue) rearm(item *queueItem, at time.Time) {
	q.seq++
	item.reminder.ScheduledAt = at
	item.seq = q.seq
	heap.Fix(&q.items, item.index)
}
