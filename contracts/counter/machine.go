package counter

import (
	"math"

	"github.com/bitpond/appkit/core/txn"
	"golang.org/x/xerrors"
)

// Phase is the lifecycle phase of a counter instance.
type Phase int

const (
	// Uninitialized is the phase before the creation of the instance.
	Uninitialized Phase = iota

	// Active is the phase of an instance that accepts calls.
	Active

	// Deleted is the terminal phase of an instance.
	Deleted
)

var phaseNames = [...]string{
	Uninitialized: "Uninitialized",
	Active:        "Active",
	Deleted:       "Deleted",
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "Unknown"
	}

	return phaseNames[p]
}

// Command is a command carried by the single argument of a call.
type Command int

const (
	// CmdUnrecognized is any argument that is not a known command.
	CmdUnrecognized Command = iota

	// CmdInc increments the counter.
	CmdInc

	// CmdDec decrements the counter.
	CmdDec

	// CmdReset sets the counter back to zero.
	CmdReset
)

var commandNames = [...]string{
	CmdUnrecognized: "unrecognized",
	CmdInc:          "inc",
	CmdDec:          "dec",
	CmdReset:        "reset",
}

// ParseCommand returns the command of the argument.
func ParseCommand(arg []byte) Command {
	for cmd := CmdInc; int(cmd) < len(commandNames); cmd++ {
		if commandNames[cmd] == string(arg) {
			return cmd
		}
	}

	return CmdUnrecognized
}

// String implements fmt.Stringer.
func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return commandNames[CmdUnrecognized]
	}

	return commandNames[c]
}

// Policy is the outcome of a call with an unrecognized command.
type Policy int

const (
	// AcceptAsNoOp accepts the call without changing the count.
	AcceptAsNoOp Policy = iota

	// RejectUnrecognized rejects the call.
	RejectUnrecognized
)

// UnrecognizedPolicy is the policy of the deployed counter.
const UnrecognizedPolicy = AcceptAsNoOp

var (
	// ErrNotCreator is returned when a lifecycle call is not sent by the
	// creator of the instance.
	ErrNotCreator = xerrors.New("sender is not the creator")

	// ErrNotActive is returned when a call targets an instance that is not
	// active.
	ErrNotActive = xerrors.New("instance is not active")

	// ErrUnderflow is returned when decrementing a count of zero.
	ErrUnderflow = xerrors.New("count underflow")

	// ErrOverflow is returned when incrementing the maximum count.
	ErrOverflow = xerrors.New("count overflow")

	// ErrUnsupportedCall is returned when a call matches no rule.
	ErrUnsupportedCall = xerrors.New("unsupported call")

	// ErrUnrecognizedCommand is returned for an unrecognized command when the
	// policy rejects them.
	ErrUnrecognizedCommand = xerrors.New("unrecognized command")
)

// State is the state of a counter instance.
type State struct {
	Phase Phase
	Count uint64
}

// Call is what the state machine knows about a transaction.
type Call struct {
	// Create is true when the call creates the instance.
	Create       bool
	OnCompletion txn.OnCompletion
	Sender       txn.Address
	Creator      txn.Address
	Args         [][]byte
}

// Machine is the state machine of the counter.
type Machine struct {
	Policy Policy
}

// Transition returns the state after the call, using the policy of the
// deployed counter.
func Transition(state State, call Call) (State, error) {
	return Machine{Policy: UnrecognizedPolicy}.Transition(state, call)
}

// Transition returns the state after the call, or an error if the call is
// rejected. The rules are evaluated in order and the first that matches
// decides. A rejection never returns a different state.
func (m Machine) Transition(state State, call Call) (State, error) {
	if call.Create {
		if state.Phase != Uninitialized {
			return state, xerrors.Errorf("create on %v instance", state.Phase)
		}

		return State{Phase: Active}, nil
	}

	if state.Phase != Active {
		return state, ErrNotActive
	}

	switch call.OnCompletion {
	case txn.Delete:
		if call.Sender != call.Creator {
			return state, ErrNotCreator
		}

		return State{Phase: Deleted, Count: state.Count}, nil
	case txn.Update:
		if call.Sender != call.Creator {
			return state, ErrNotCreator
		}

		return state, nil
	case txn.CloseOut, txn.OptIn:
		// Membership is open to anyone and does not touch the count.
		return state, nil
	}

	if len(call.Args) != 1 {
		return state, ErrUnsupportedCall
	}

	return m.apply(state, ParseCommand(call.Args[0]))
}

func (m Machine) apply(state State, cmd Command) (State, error) {
	next := state

	switch cmd {
	case CmdInc:
		if state.Count == math.MaxUint64 {
			return state, ErrOverflow
		}

		next.Count++
	case CmdDec:
		if state.Count == 0 {
			return state, ErrUnderflow
		}

		next.Count--
	case CmdReset:
		next.Count = 0
	default:
		if m.Policy == RejectUnrecognized {
			return state, ErrUnrecognizedCommand
		}
	}

	return next, nil
}
