// Package counter implements a stateful application that owns a single
// integer of global state.
//
// The instance is created with a count of zero. Anyone can increment,
// decrement or reset it, and only the creator can update or delete the
// instance. The count is an unsigned 64-bit integer and an operation that
// would wrap around is rejected.
package counter

import (
	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/execution/native"
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/store"
	"golang.org/x/xerrors"
)

const (
	// ApprovalTemplate is the name of the approval program of the counter.
	ApprovalTemplate = "counter/approval"

	// ClearTemplate is the name of the clear program of the counter.
	ClearTemplate = "counter/clear"

	// KeyCount is the key of the count in the global state.
	KeyCount = "count"
)

// RegisterContract registers the programs of the counter to the execution
// service.
func RegisterContract(exec *native.Service) {
	exec.SetContract(ApprovalTemplate, NewApproval)
	exec.SetContract(ClearTemplate, NewClear)
}

// ApprovalSource returns the source of the approval program.
func ApprovalSource() string {
	return program.Render(ApprovalTemplate, nil)
}

// ClearSource returns the source of the clear program.
func ClearSource() string {
	return program.Render(ClearTemplate, nil)
}

// Approval is the approval program of the counter.
//
// - implements native.Contract
type Approval struct {
	machine Machine
}

// NewApproval returns the approval program. It does not take any parameter.
func NewApproval(params program.Params) (native.Contract, error) {
	if len(params) > 0 {
		return nil, xerrors.Errorf("unexpected parameters %v", params.Keys())
	}

	return Approval{machine: Machine{Policy: UnrecognizedPolicy}}, nil
}

// Approve implements native.Contract. It reads the count from the global state
// of the instance, runs the state machine and writes the new count.
func (a Approval) Approve(snap store.Snapshot, step execution.Step) error {
	tx := step.Current

	state := State{Phase: Uninitialized}

	if !tx.IsCreate() {
		count, err := readCount(snap)
		if err != nil {
			return err
		}

		state = State{Phase: Active, Count: count}
	}

	call := Call{
		Create:       tx.IsCreate(),
		OnCompletion: tx.GetOnCompletion(),
		Sender:       tx.GetSender(),
		Creator:      step.Creator,
		Args:         tx.GetArgs(),
	}

	next, err := a.machine.Transition(state, call)
	if err != nil {
		return err
	}

	if next.Phase == Active && (state.Phase != Active || next.Count != state.Count) {
		err = snap.Set([]byte(KeyCount), execution.NewUint(next.Count).Encode())
		if err != nil {
			return xerrors.Errorf("failed to write count: %v", err)
		}
	}

	return nil
}

// Clear is the clear program of the counter. It always approves.
//
// - implements native.Contract
type Clear struct{}

// NewClear returns the clear program. It does not take any parameter.
func NewClear(params program.Params) (native.Contract, error) {
	if len(params) > 0 {
		return nil, xerrors.Errorf("unexpected parameters %v", params.Keys())
	}

	return Clear{}, nil
}

// Approve implements native.Contract.
func (Clear) Approve(store.Snapshot, execution.Step) error {
	return nil
}

// CountOf returns the count of a global state.
func CountOf(state map[string]execution.Value) (uint64, error) {
	value, found := state[KeyCount]
	if !found {
		return 0, xerrors.Errorf("key '%s' not found", KeyCount)
	}

	if value.Type != execution.TypeUint {
		return 0, xerrors.Errorf("key '%s' is not an integer", KeyCount)
	}

	return value.Uint, nil
}

func readCount(snap store.Readable) (uint64, error) {
	data, err := snap.Get([]byte(KeyCount))
	if err != nil {
		return 0, xerrors.Errorf("failed to read count: %v", err)
	}

	if data == nil {
		return 0, xerrors.New("count is missing")
	}

	value, err := execution.DecodeValue(data)
	if err != nil {
		return 0, xerrors.Errorf("invalid count: %v", err)
	}

	if value.Type != execution.TypeUint {
		return 0, xerrors.New("count is not an integer")
	}

	return value.Uint, nil
}
