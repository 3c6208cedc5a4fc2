package controller

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bitpond/appkit/cli/node"
	"github.com/bitpond/appkit/core/ledger/http"
	"github.com/bitpond/appkit/core/ledger/local"
	"github.com/bitpond/appkit/core/txn"
	"golang.org/x/xerrors"
)

// fundAction is an action to credit an account.
//
// - implements node.ActionTemplate
type fundAction struct{}

// Execute implements node.ActionTemplate. It credits the amount to the
// address.
func (fundAction) Execute(ctx node.Context) error {
	addr, err := txn.ParseAddress(ctx.Flags.String("address"))
	if err != nil {
		return xerrors.Errorf("invalid address: %v", err)
	}

	amount, err := strconv.ParseUint(ctx.Flags.String("amount"), 10, 64)
	if err != nil {
		return xerrors.Errorf("invalid amount: %v", err)
	}

	ledger, err := node.Get[*local.Node](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	err = ledger.Fund(addr, amount)
	if err != nil {
		return xerrors.Errorf("failed to fund: %v", err)
	}

	fmt.Fprintf(ctx.Out, "credited %d to %v", amount, addr)

	return nil
}

// infoAction is an action to print the state of the node.
//
// - implements node.ActionTemplate
type infoAction struct{}

// Execute implements node.ActionTemplate.
func (infoAction) Execute(ctx node.Context) error {
	ledger, err := node.Get[*local.Node](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	params, err := ledger.SuggestedParams(context.Background())
	if err != nil {
		return xerrors.Errorf("failed to read params: %v", err)
	}

	info := fmt.Sprintf("genesis: %s\nround: %d\nmin fee: %d",
		params.GenesisID, params.FirstValid-1, params.Fee)

	srv, err := node.Get[*http.Server](ctx.Injector)
	if err == nil && srv.GetAddr() != nil {
		info += fmt.Sprintf("\naddress: http://%s", srv.GetAddr())
	}

	fmt.Fprint(ctx.Out, info)

	return nil
}

// produceAction is an action to produce a round right away.
//
// - implements node.ActionTemplate
type produceAction struct{}

// Execute implements node.ActionTemplate.
func (produceAction) Execute(ctx node.Context) error {
	ledger, err := node.Get[*local.Node](ctx.Injector)
	if err != nil {
		return xerrors.Errorf("injector: %v", err)
	}

	evt, err := ledger.Produce()
	if err != nil {
		return xerrors.Errorf("failed to produce: %v", err)
	}

	fmt.Fprintf(ctx.Out, "round %d: %d accepted, %d rejected", evt.Round, evt.Accepted, evt.Rejected)

	return nil
}
