package flow

import (
	"context"

	"github.com/looplab/fsm"
)

// Flow record states.
const (
	StateNone       = "none"
	StateActive     = "active"
	StateTerminated = "terminated"
)

const (
	eventOpen      = "open"
	eventTerminate = "terminate"
)

func newMachine(initial string) *fsm.FSM {
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateNone, StateTerminated}, Dst: StateActive},
			{Name: eventTerminate, Src: []string{StateActive}, Dst: StateTerminated},
		},
		fsm.Callbacks{},
	)
}

func fire(machine *fsm.FSM, event string) error {
	return machine.Event(context.Background(), event)
}
