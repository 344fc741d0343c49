package twofactor

import "fmt"

type event uint8

const (
	eventSetup event = iota + 1
	eventVerify
	eventDisable
	eventRegenerate
)

func (e event) String() string {
	switch e {
	case eventSetup:
		return "setup"
	case eventVerify:
		return "verify"
	case eventDisable:
		return "disable"
	case eventRegenerate:
		return "regenerate"
	}
	return "unknown"
}

// transitions is indexed [from][event] for O(1) lookups.
var transitions = map[Status]map[event]Status{
	StatusDisabled: {
		eventSetup: StatusPendingSetup,
	},
	StatusPendingSetup: {
		eventSetup:  StatusPendingSetup,
		eventVerify: StatusEnabled,
	},
	StatusEnabled: {
		eventDisable:    StatusDisabled,
		eventRegenerate: StatusEnabled,
	},
}

// rejections names the precondition that fails when an event has no
// transition from a state.
var rejections = map[Status]map[event]error{
	StatusDisabled: {
		eventVerify:     ErrSetupNotStarted,
		eventDisable:    ErrNotEnabled,
		eventRegenerate: ErrNotEnabled,
	},
	StatusPendingSetup: {
		eventDisable:    ErrNotEnabled,
		eventRegenerate: ErrNotEnabled,
	},
	StatusEnabled: {
		eventSetup:  ErrAlreadyEnabled,
		eventVerify: ErrAlreadyEnabled,
	},
}

// TransitionError reports an event fired from a state that has no edge for it.
type TransitionError struct {
	From  Status
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from %s on %s: %v", e.From, e.Event, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func transition(from Status, ev event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	err := rejections[from][ev]
	if err == nil {
		err = ErrCorruptState
	}
	return from, &TransitionError{From: from, Event: ev.String(), Err: err}
}
