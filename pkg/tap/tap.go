// Package tap tracks the IEEE 1149.1 TAP controller state machine and
// computes the TMS drive patterns needed to move it between states. It
// performs no I/O: pkg/jtagshift asks it for paths and forwards the TMS bits
// to the probe transport.
package tap

import "fmt"

// State is one of the 16 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates = 16
)

var stateNames = [numStates]string{
	"TestLogicReset", "RunTestIdle",
	"SelectDRScan", "CaptureDR", "ShiftDR", "Exit1DR", "PauseDR", "Exit2DR", "UpdateDR",
	"SelectIRScan", "CaptureIR", "ShiftIR", "Exit1IR", "PauseIR", "Exit2IR", "UpdateIR",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// next is the TAP transition table, indexed by [state][tms].
var next = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the state reached by one TCK cycle with the given TMS
// level.
func NextState(s State, tms bool) State {
	if tms {
		return next[s][1]
	}
	return next[s][0]
}

// Path is the TMS drive pattern that moves the controller between two
// states, one bit per TCK cycle.
type Path struct {
	TMS []bool
}

// Len is the number of TCK cycles the path occupies.
func (p Path) Len() int { return len(p.TMS) }

// StateMachine mirrors the target's TAP controller so the driver always
// knows which state a TMS pattern will leave it in.
type StateMachine struct {
	state State
}

// NewStateMachine returns a machine in Test-Logic-Reset, the state any TAP
// lands in after five TMS-high cycles.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the tracked controller state.
func (m *StateMachine) State() State { return m.state }

// Clock advances one TCK cycle with the given TMS level and returns the new
// state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// Reset returns the five TMS-high cycles that force any TAP into
// Test-Logic-Reset, advancing the tracked state to match.
func (m *StateMachine) Reset() Path {
	p := Path{TMS: []bool{true, true, true, true, true}}
	for _, tms := range p.TMS {
		m.Clock(tms)
	}
	return p
}

// GoTo finds the shortest TMS pattern from the current state to target,
// advances the tracked state along it, and returns it. The zero-length path
// is returned when the machine is already at target.
func (m *StateMachine) GoTo(target State) (Path, error) {
	if m.state >= numStates || target >= numStates {
		return Path{}, fmt.Errorf("tap: invalid state (%d -> %d)", m.state, target)
	}
	p := shortestPath(m.state, target)
	for _, tms := range p.TMS {
		m.Clock(tms)
	}
	return p, nil
}

// hop records how BFS first reached a state: its predecessor and the TMS
// bit clocked to get there.
type hop struct {
	prev State
	tms  bool
}

// shortestPath runs breadth-first search over the transition table,
// recording each state's predecessor and the TMS bit that reached it, then
// walks the chain backwards from the target.
func shortestPath(from, to State) Path {
	if from == to {
		return Path{}
	}

	var via [numStates]hop
	var seen [numStates]bool
	seen[from] = true

	queue := []State{from}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, tms := range [2]bool{false, true} {
			n := NextState(s, tms)
			if seen[n] {
				continue
			}
			seen[n] = true
			via[n] = hop{prev: s, tms: tms}
			if n == to {
				return unwind(via, from, to)
			}
			queue = append(queue, n)
		}
	}
	// The TAP diagram is strongly connected; every state is reachable.
	return unwind(via, from, to)
}

func unwind(via [numStates]hop, from, to State) Path {
	var rev []bool
	for s := to; s != from; s = via[s].prev {
		rev = append(rev, via[s].tms)
	}
	tms := make([]bool, len(rev))
	for i, b := range rev {
		tms[len(rev)-1-i] = b
	}
	return Path{TMS: tms}
}
