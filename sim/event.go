package sim

import "container/heap"

// BasalHoursPerDay converts a one-time daily basal amount into the hourly rate
// the model expects. Basal delivery is assumed to be linear over the day.
const BasalHoursPerDay = 24

// intakeItem is a queued intake; seq breaks ties between events on the same minute.
type intakeItem struct {
	event IntakeEvent
	seq   int
}

// IntakeQueue implements heap.Interface and orders intakes by minute of day.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type IntakeQueue []intakeItem

func (q IntakeQueue) Len() int { return len(q) }
func (q IntakeQueue) Less(i, j int) bool {
	if q[i].event.Minute != q[j].event.Minute {
		return q[i].event.Minute < q[j].event.Minute
	}
	return q[i].seq < q[j].seq
}
func (q IntakeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *IntakeQueue) Push(x any) {
	*q = append(*q, x.(intakeItem))
}

func (q *IntakeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}

// newIntakeQueue queues one day's events of the schedule.
func newIntakeQueue(schedule DosingSchedule) *IntakeQueue {
	events := schedule.Events()
	q := make(IntakeQueue, 0, len(events))
	for i, e := range events {
		q = append(q, intakeItem{event: e, seq: i})
	}
	heap.Init(&q)
	return &q
}

// intakeSignal converts an intake into the signal injected with the next step.
func intakeSignal(e IntakeEvent) Signal {
	switch e.Kind {
	case BasalInsulin:
		return Signal{Kind: SignalBasalRate, Level: e.Amount / BasalHoursPerDay}
	case BolusInsulin:
		return Signal{Kind: SignalBolus, Level: e.Amount}
	default:
		return Signal{Kind: SignalCarbIntake, Level: e.Amount}
	}
}
