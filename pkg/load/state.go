package load

import (
	"time"

	"github.com/bruin-data/staywarehouse/pkg/logger"
	"github.com/pkg/errors"
)

type State string

const (
	StatePending       State = "pending"
	StateTypeOneLoaded State = "type1_loaded"
	StateTypeTwoLoaded State = "type2_loaded"
	StateFactsLoaded   State = "facts_loaded"
	StateCommitted     State = "committed"
	StateFailed        State = "failed"
)

var nextState = map[State]State{
	StatePending:       StateTypeOneLoaded,
	StateTypeOneLoaded: StateTypeTwoLoaded,
	StateTypeTwoLoaded: StateFactsLoaded,
	StateFactsLoaded:   StateCommitted,
}

type Transition struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// machine walks a load through its states and records every transition on the
// report.
type machine struct {
	report *Report
	logger logger.Logger
	now    func() time.Time
}

func (m *machine) current() State {
	return m.report.State
}

func (m *machine) advance(to State) error {
	from := m.current()
	if nextState[from] != to {
		return errors.Errorf("invalid state transition from %s to %s", from, to)
	}
	m.record(to)
	m.logger.Debugw("load state changed", "batch_id", m.report.BatchID, "from", from, "to", to)
	return nil
}

func (m *machine) fail(err error) {
	from := m.current()
	m.record(StateFailed)
	m.report.Status = StatusFailed
	m.report.Error = err.Error()
	m.logger.Errorw("load failed", "batch_id", m.report.BatchID, "state", from, "error", err)
}

func (m *machine) record(s State) {
	m.report.State = s
	m.report.History = append(m.report.History, Transition{State: s, At: m.now()})
}
