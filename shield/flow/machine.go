package flow

import (
	"fmt"
	"sync"
)

type State string

const (
	StateIdle            State = "idle"
	StateDepositing      State = "depositing"
	StateDeposited       State = "deposited"
	StateGeneratingProof State = "generating_proof"
	StateProofGenerated  State = "proof_generated"
	StateQueued          State = "queued"
	StateBeingMined      State = "being_mined"
	StateMined           State = "mined"
	StateSent            State = "sent"
	StateError           State = "error"
)

// order is the only path a flow may take. StateError is reachable from
// every state before StateSent.
var order = []State{
	StateIdle,
	StateDepositing,
	StateDeposited,
	StateGeneratingProof,
	StateProofGenerated,
	StateQueued,
	StateBeingMined,
	StateMined,
	StateSent,
}

func (s State) position() int {
	for i, o := range order {
		if o == s {
			return i
		}
	}
	return -1
}

func (s State) Terminal() bool {
	return s == StateSent || s == StateError
}

type Transition struct {
	FlowID string
	From   State
	To     State
	TxID   string
	Err    error
}

type Observer func(Transition)

// Machine tracks one flow through its states.
type Machine struct {
	mtx      sync.Mutex
	id       string
	state    State
	txID     string
	err      error
	history  []State
	observer Observer
}

// NewMachine starts a flow at start. Spends of an already deposited note
// start at StateDeposited.
func NewMachine(id string, start State, observer Observer) *Machine {
	if start.position() < 0 || start.Terminal() {
		panic(fmt.Sprintf("flow: invalid start state %q", start))
	}
	return &Machine{
		id:       id,
		state:    start,
		history:  []State{start},
		observer: observer,
	}
}

func (m *Machine) ID() string {
	return m.id
}

func (m *Machine) State() State {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.state
}

func (m *Machine) TxID() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.txID
}

// Err is the failure that moved the machine to StateError.
func (m *Machine) Err() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.err
}

func (m *Machine) History() []State {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return append([]State(nil), m.history...)
}

// Advance moves to the state that directly follows the current one.
func (m *Machine) Advance(to State) error {
	m.mtx.Lock()
	from := m.state
	if from.Terminal() {
		m.mtx.Unlock()
		return fmt.Errorf("flow %s: cannot leave terminal state %s", m.id, from)
	}
	if to.position() != from.position()+1 {
		m.mtx.Unlock()
		return fmt.Errorf("flow %s: invalid transition %s -> %s", m.id, from, to)
	}
	m.state = to
	m.history = append(m.history, to)
	tr := Transition{FlowID: m.id, From: from, To: to, TxID: m.txID}
	m.mtx.Unlock()

	m.notify(tr)
	return nil
}

// Fail moves a non-terminal machine to StateError and returns err.
// A terminal machine is left untouched.
func (m *Machine) Fail(err error) error {
	m.mtx.Lock()
	from := m.state
	if from.Terminal() {
		m.mtx.Unlock()
		return err
	}
	m.state = StateError
	m.err = err
	m.history = append(m.history, StateError)
	tr := Transition{FlowID: m.id, From: from, To: StateError, Err: err}
	m.mtx.Unlock()

	m.notify(tr)
	return err
}

func (m *Machine) setTxID(txID string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.txID = txID
}

func (m *Machine) notify(tr Transition) {
	if m.observer != nil {
		m.observer(tr)
	}
}
