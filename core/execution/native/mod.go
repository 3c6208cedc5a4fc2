// Package native implements an execution service to run native programs.
//
// A native program is written in Go and packaged with the node. The bytecode
// of a program only names the template and the parameters bound to it, so the
// service looks up the template in its registry and instantiates it with the
// parameters for every evaluation.
package native

import (
	"github.com/bitpond/appkit"
	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/store"
	"golang.org/x/xerrors"
)

// Contract is the interface to implement to register an application program
// that will be executed natively.
type Contract interface {
	// Approve returns nil if the call is accepted. The contract can update
	// the state of the instance through the snapshot.
	Approve(store.Snapshot, execution.Step) error
}

// Predicate is the interface to implement to register a logic signature that
// will be executed natively.
type Predicate interface {
	// Authorize returns nil if the transaction is authorized.
	Authorize(execution.Step) error
}

// ContractFactory creates a contract from the parameters of a program.
type ContractFactory func(program.Params) (Contract, error)

// PredicateFactory creates a predicate from the parameters of a program.
type PredicateFactory func(program.Params) (Predicate, error)

// Service is an execution service for packaged programs.
//
// - implements execution.Service
type Service struct {
	contracts  map[string]ContractFactory
	predicates map[string]PredicateFactory
}

// NewExecution returns a new native execution without any template.
func NewExecution() *Service {
	return &Service{
		contracts:  map[string]ContractFactory{},
		predicates: map[string]PredicateFactory{},
	}
}

// SetContract registers the application template under the name. It panics
// if the name is already taken.
func (ns *Service) SetContract(name string, factory ContractFactory) {
	ns.checkName(name)

	ns.contracts[name] = factory
}

// SetPredicate registers the logic signature template under the name. It
// panics if the name is already taken.
func (ns *Service) SetPredicate(name string, factory PredicateFactory) {
	ns.checkName(name)

	ns.predicates[name] = factory
}

func (ns *Service) checkName(name string) {
	if ns.Has(name) {
		panic(xerrors.Errorf("template '%s' already registered", name))
	}
}

// Has returns true if a template is registered under the name.
func (ns *Service) Has(name string) bool {
	_, isContract := ns.contracts[name]
	_, isPredicate := ns.predicates[name]

	return isContract || isPredicate
}

// Validate implements execution.Service. It decodes the program and makes sure
// that the template accepts the parameters.
func (ns *Service) Validate(bytecode []byte) error {
	prog, err := program.Decode(bytecode)
	if err != nil {
		return xerrors.Errorf("invalid bytecode: %v", err)
	}

	if factory, found := ns.contracts[prog.Template]; found {
		_, err = factory(prog.Params)
	} else if factory, found := ns.predicates[prog.Template]; found {
		_, err = factory(prog.Params)
	} else {
		return xerrors.Errorf("unknown template '%s'", prog.Template)
	}

	if err != nil {
		return xerrors.Errorf("template '%s': %v", prog.Template, err)
	}

	return nil
}

// Execute implements execution.Service. It instantiates the contract of the
// program and runs it. A refusal of the contract is returned as a rejected
// result, while an error means the program could not run at all.
func (ns *Service) Execute(snap store.Snapshot, bytecode []byte,
	step execution.Step) (execution.Result, error) {

	prog, err := program.Decode(bytecode)
	if err != nil {
		return execution.Result{}, xerrors.Errorf("invalid bytecode: %v", err)
	}

	factory := ns.contracts[prog.Template]
	if factory == nil {
		return execution.Result{}, xerrors.Errorf("unknown contract '%s'", prog.Template)
	}

	contract, err := factory(prog.Params)
	if err != nil {
		return execution.Result{}, xerrors.Errorf("contract '%s': %v", prog.Template, err)
	}

	res := execution.Result{
		Accepted: true,
	}

	err = contract.Approve(snap, step)
	if err != nil {
		res.Accepted = false
		res.Message = err.Error()
	}

	appkit.Logger.Debug().
		Str("template", prog.Template).
		Uint64("app", step.AppID).
		Bool("accepted", res.Accepted).
		Msg("contract executed")

	return res, nil
}

// Authorize implements execution.Service. It instantiates the predicate of the
// program and evaluates it against the transaction.
func (ns *Service) Authorize(bytecode []byte, step execution.Step) (execution.Result, error) {
	prog, err := program.Decode(bytecode)
	if err != nil {
		return execution.Result{}, xerrors.Errorf("invalid bytecode: %v", err)
	}

	factory := ns.predicates[prog.Template]
	if factory == nil {
		return execution.Result{}, xerrors.Errorf("unknown predicate '%s'", prog.Template)
	}

	predicate, err := factory(prog.Params)
	if err != nil {
		return execution.Result{}, xerrors.Errorf("predicate '%s': %v", prog.Template, err)
	}

	err = predicate.Authorize(step)
	if err != nil {
		return execution.Result{Message: err.Error()}, nil
	}

	return execution.Result{Accepted: true}, nil
}
