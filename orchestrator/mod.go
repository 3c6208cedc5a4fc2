// Package orchestrator drives the counter and the escrow programs through a
// ledger service.
//
// Every operation follows the same pipeline: compile the source into bytecode,
// build and sign a transaction, submit it and wait for its confirmation, then
// read the resulting state. The outputs that must survive between operations,
// like the bytecode or the identifier of an application, are kept in an
// artifact store.
//
// A signed transaction is never submitted twice. If the ledger already knows
// it, the submission is considered successful, and if the ledger cannot be
// reached the outcome is found out by polling its status.
package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/bitpond/appkit"
	"github.com/bitpond/appkit/contracts/counter"
	"github.com/bitpond/appkit/contracts/escrow"
	"github.com/bitpond/appkit/core/ledger"
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/bitpond/appkit/crypto"
	"github.com/bitpond/appkit/orchestrator/artifact"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

const (
	// DefaultConfirmationRounds is the number of rounds to wait for a
	// transaction to be confirmed.
	DefaultConfirmationRounds = 10

	// DefaultPollInterval is the time between two status requests.
	DefaultPollInterval = 500 * time.Millisecond
)

// Names of the artifacts.
const (
	ArtifactCounterApproval = "counter_approval"
	ArtifactCounterClear    = "counter_clear"
	ArtifactCounterApp      = "counter_app_id"
	ArtifactEscrow          = "escrow"
	ArtifactEscrowAddress   = "escrow_address"
)

var (
	// ErrMissingCredential is returned when an operation needs a signature
	// and no signer is set.
	ErrMissingCredential = xerrors.New("missing credential")

	// ErrMissingArtifact is returned when an operation needs an artifact that
	// was not produced yet.
	ErrMissingArtifact = xerrors.New("missing artifact")
)

// EscrowMeta is the metadata of a compiled escrow.
type EscrowMeta struct {
	Receiver  txn.Address `yaml:"receiver"`
	MaxAmount uint64      `yaml:"max_amount"`
	Address   txn.Address `yaml:"address"`
}

// CounterPrograms are the compiled programs of the counter.
type CounterPrograms struct {
	Approval ledger.Compiled
	Clear    ledger.Compiled
}

// Client is the orchestrator of the programs.
type Client struct {
	ledger   ledger.Service
	store    *artifact.Store
	signer   crypto.Signer
	rounds   uint64
	interval time.Duration
	logger   zerolog.Logger
}

type clientTemplate struct {
	signer   crypto.Signer
	rounds   uint64
	interval time.Duration
}

// Option is the type of options to create a client.
type Option func(*clientTemplate)

// WithSigner is an option to set the signer of the transactions.
func WithSigner(signer crypto.Signer) Option {
	return func(tmpl *clientTemplate) {
		tmpl.signer = signer
	}
}

// WithConfirmationRounds is an option to set the number of rounds to wait for
// a confirmation.
func WithConfirmationRounds(rounds uint64) Option {
	return func(tmpl *clientTemplate) {
		tmpl.rounds = rounds
	}
}

// WithPollInterval is an option to set the time between two status requests.
func WithPollInterval(interval time.Duration) Option {
	return func(tmpl *clientTemplate) {
		tmpl.interval = interval
	}
}

// NewClient creates a new orchestrator of the ledger service that keeps its
// artifacts in the store.
func NewClient(service ledger.Service, store *artifact.Store, opts ...Option) *Client {
	tmpl := clientTemplate{
		rounds:   DefaultConfirmationRounds,
		interval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	return &Client{
		ledger:   service,
		store:    store,
		signer:   tmpl.signer,
		rounds:   tmpl.rounds,
		interval: tmpl.interval,
		logger:   appkit.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Address returns the address of the signer.
func (c *Client) Address() (txn.Address, error) {
	mgr, err := c.manager()
	if err != nil {
		return txn.Address{}, err
	}

	return mgr.GetAddress(), nil
}

// Account returns the state of the account of the signer.
func (c *Client) Account(ctx context.Context) (ledger.Account, error) {
	addr, err := c.Address()
	if err != nil {
		return ledger.Account{}, err
	}

	acct, err := c.ledger.GetAccount(ctx, addr)
	if err != nil {
		return ledger.Account{}, xerrors.Errorf("failed to read account: %w", err)
	}

	return acct, nil
}

// CompileCounter compiles the programs of the counter and stores their
// bytecode.
func (c *Client) CompileCounter(ctx context.Context) (CounterPrograms, error) {
	var progs CounterPrograms
	var err error

	progs.Approval, err = c.compile(ctx, ArtifactCounterApproval, counter.ApprovalSource())
	if err != nil {
		return progs, err
	}

	progs.Clear, err = c.compile(ctx, ArtifactCounterClear, counter.ClearSource())
	if err != nil {
		return progs, err
	}

	return progs, nil
}

// DeployCounter creates a counter with the compiled programs and stores its
// identifier.
func (c *Client) DeployCounter(ctx context.Context) (uint64, error) {
	approval, clear, err := c.counterPrograms()
	if err != nil {
		return 0, err
	}

	status, err := c.submit(ctx, txn.TypeApplication, txn.WithApplication(0, txn.NoOp),
		txn.WithPrograms(approval, clear))
	if err != nil {
		return 0, xerrors.Errorf("failed to deploy: %w", err)
	}

	err = c.store.WriteRecord(ArtifactCounterApp, strconv.FormatUint(status.AppID, 10))
	if err != nil {
		return 0, xerrors.Errorf("failed to store application: %v", err)
	}

	c.logger.Info().Uint64("app", status.AppID).Uint64("round", status.Round).Msg("counter deployed")

	return status.AppID, nil
}

// CallCounter sends the command to the deployed counter.
func (c *Client) CallCounter(ctx context.Context, cmd counter.Command) (ledger.Status, error) {
	if cmd == counter.CmdUnrecognized {
		return ledger.Status{}, xerrors.Errorf("unsupported command '%v'", cmd)
	}

	id, err := c.counterApp()
	if err != nil {
		return ledger.Status{}, err
	}

	status, err := c.submit(ctx, txn.TypeApplication, txn.WithApplication(id, txn.NoOp),
		txn.WithArgs([]byte(cmd.String())))
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to call %v: %w", cmd, err)
	}

	return status, nil
}

// ReadCounter returns the count of the deployed counter.
func (c *Client) ReadCounter(ctx context.Context) (uint64, error) {
	id, err := c.counterApp()
	if err != nil {
		return 0, err
	}

	state, err := c.ledger.GetApplicationState(ctx, id)
	if err != nil {
		return 0, xerrors.Errorf("failed to read application %d: %w", id, err)
	}

	count, err := counter.CountOf(state)
	if err != nil {
		return 0, xerrors.Errorf("invalid state: %v", err)
	}

	return count, nil
}

// UpdateCounter replaces the programs of the deployed counter with the
// compiled ones.
func (c *Client) UpdateCounter(ctx context.Context) (ledger.Status, error) {
	id, err := c.counterApp()
	if err != nil {
		return ledger.Status{}, err
	}

	approval, clear, err := c.counterPrograms()
	if err != nil {
		return ledger.Status{}, err
	}

	status, err := c.submit(ctx, txn.TypeApplication, txn.WithApplication(id, txn.Update),
		txn.WithPrograms(approval, clear))
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to update: %w", err)
	}

	return status, nil
}

// DeleteCounter destroys the deployed counter and forgets its identifier.
func (c *Client) DeleteCounter(ctx context.Context) (ledger.Status, error) {
	id, err := c.counterApp()
	if err != nil {
		return ledger.Status{}, err
	}

	status, err := c.submit(ctx, txn.TypeApplication, txn.WithApplication(id, txn.Delete))
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to delete: %w", err)
	}

	err = c.store.Remove(ArtifactCounterApp, artifact.KindRecord)
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to forget application: %v", err)
	}

	return status, nil
}

// CompileEscrow compiles an escrow for the receiver and the maximum amount,
// and stores its bytecode next to the parameters and the address.
func (c *Client) CompileEscrow(ctx context.Context, receiver txn.Address, maxAmount uint64) (EscrowMeta, error) {
	if receiver.IsZero() {
		return EscrowMeta{}, xerrors.New("receiver is missing")
	}

	pred := escrow.Predicate{Receiver: receiver, MaxAmount: maxAmount}

	compiled, err := c.compile(ctx, ArtifactEscrow, pred.Source())
	if err != nil {
		return EscrowMeta{}, err
	}

	if compiled.Address != program.Address(compiled.Bytecode) {
		return EscrowMeta{}, xerrors.Errorf("address mismatch: %v != %v",
			compiled.Address, program.Address(compiled.Bytecode))
	}

	meta := EscrowMeta{
		Receiver:  receiver,
		MaxAmount: maxAmount,
		Address:   compiled.Address,
	}

	err = c.store.WriteMeta(ArtifactEscrow, meta)
	if err != nil {
		return EscrowMeta{}, xerrors.Errorf("failed to store escrow: %v", err)
	}

	err = c.store.WriteRecord(ArtifactEscrowAddress, compiled.Address.String())
	if err != nil {
		return EscrowMeta{}, xerrors.Errorf("failed to store escrow: %v", err)
	}

	c.logger.Info().Stringer("address", compiled.Address).Msg("escrow compiled")

	return meta, nil
}

// FundEscrow pays the amount to the compiled escrow.
func (c *Client) FundEscrow(ctx context.Context, amount uint64) (ledger.Status, error) {
	meta, _, err := c.escrow()
	if err != nil {
		return ledger.Status{}, err
	}

	status, err := c.submit(ctx, txn.TypePayment, txn.WithPayment(meta.Address, amount))
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to fund: %w", err)
	}

	return status, nil
}

// WithdrawEscrow pays the amount from the escrow to its receiver.
func (c *Client) WithdrawEscrow(ctx context.Context, amount uint64) (ledger.Status, error) {
	meta, _, err := c.escrow()
	if err != nil {
		return ledger.Status{}, err
	}

	return c.WithdrawEscrowTo(ctx, meta.Receiver, amount)
}

// WithdrawEscrowTo pays the amount from the escrow to the address. The escrow
// authorizes only its receiver so any other address is rejected by the ledger.
func (c *Client) WithdrawEscrowTo(ctx context.Context, to txn.Address, amount uint64) (ledger.Status, error) {
	meta, bytecode, err := c.escrow()
	if err != nil {
		return ledger.Status{}, err
	}

	mgr := signed.NewLogicManager(c.ledger)

	stx, err := mgr.MakeLogicSigned(ctx, bytecode, txn.TypePayment, txn.WithPayment(to, amount))
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to create tx: %v", err)
	}

	status, err := c.send(ctx, stx)
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to withdraw: %w", err)
	}

	c.logger.Info().
		Stringer("escrow", meta.Address).
		Stringer("to", to).
		Uint64("amount", amount).
		Msg("escrow withdrawn")

	return status, nil
}

// WaitForConfirmation polls the status of the transaction until it is
// confirmed or rejected, or until the ledger has produced the number of rounds
// without including it. The rounds are counted from the first status read. A
// ledger that cannot be reached is polled again, and the wait fails once it has
// been unavailable for as many polls as rounds.
func (c *Client) WaitForConfirmation(ctx context.Context, id string, rounds uint64) (ledger.Status, error) {
	return c.wait(ctx, id, nil, rounds)
}

// waitFrom is the same as WaitForConfirmation with the rounds counted from the
// given round.
func (c *Client) waitFrom(ctx context.Context, id string, start, rounds uint64) (ledger.Status, error) {
	return c.wait(ctx, id, &start, rounds)
}

func (c *Client) wait(ctx context.Context, id string, start *uint64, rounds uint64) (ledger.Status, error) {
	failures := uint64(0)

	for {
		status, err := c.ledger.Status(ctx, id)

		switch {
		case err == nil:
			failures = 0

			if start == nil {
				first := status.LastRound
				start = &first
			}

			switch status.State {
			case ledger.StateConfirmed:
				return status, nil
			case ledger.StateRejected:
				return status, ledger.NewRejectedError(status.Reason)
			}

			if status.LastRound >= *start+rounds {
				return status, xerrors.Errorf("transaction %s pending after %d rounds: %w",
					id, rounds, ledger.ErrConfirmationTimeout)
			}
		case ledger.IsUnavailable(err) || xerrors.Is(err, ledger.ErrNotFound):
			failures++

			c.logger.Debug().Err(err).Str("tx", id).Msg("status not available")

			if failures > rounds {
				return ledger.Status{}, xerrors.Errorf("%v: %w", err, ledger.ErrConfirmationTimeout)
			}
		default:
			return ledger.Status{}, xerrors.Errorf("failed to read status: %v", err)
		}

		select {
		case <-time.After(c.interval):
		case <-ctx.Done():
			return ledger.Status{}, xerrors.Errorf("interrupted: %v", ctx.Err())
		}
	}
}

func (c *Client) manager() (*signed.TransactionManager, error) {
	if c.signer == nil {
		return nil, ErrMissingCredential
	}

	mgr, err := signed.NewManager(c.signer, c.ledger)
	if err != nil {
		return nil, xerrors.Errorf("invalid credential: %v", err)
	}

	return mgr, nil
}

// submit creates a transaction signed by the signer, sends it and waits for
// its confirmation.
func (c *Client) submit(ctx context.Context, typ txn.Type, opts ...txn.Option) (ledger.Status, error) {
	mgr, err := c.manager()
	if err != nil {
		return ledger.Status{}, err
	}

	stx, err := mgr.Make(ctx, typ, opts...)
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to create tx: %v", err)
	}

	return c.send(ctx, stx)
}

func (c *Client) send(ctx context.Context, stx *signed.Transaction) (ledger.Status, error) {
	id := ledger.TxID(stx)

	_, err := c.ledger.Submit(ctx, stx)

	switch {
	case err == nil:
		c.logger.Debug().Str("tx", id).Msg("transaction submitted")
	case xerrors.Is(err, ledger.ErrAlreadySeen):
		c.logger.Info().Str("tx", id).Msg("transaction already seen by the ledger")
	case ledger.IsUnavailable(err):
		// The transaction might have reached the ledger, so it is never sent
		// again and its status decides.
		c.logger.Warn().Err(err).Str("tx", id).Msg("submission outcome unknown")
	default:
		return ledger.Status{}, err
	}

	// The parameters are suggested for the round after the last one, which is
	// the round of the submission.
	submitted := stx.GetTransaction().GetParams().FirstValid
	if submitted > 0 {
		submitted--
	}

	return c.waitFrom(ctx, id, submitted, c.rounds)
}

func (c *Client) compile(ctx context.Context, name, source string) (ledger.Compiled, error) {
	compiled, err := c.ledger.Compile(ctx, source)
	if err != nil {
		return ledger.Compiled{}, xerrors.Errorf("failed to compile %s: %w", name, err)
	}

	err = c.store.WriteBytecode(name, compiled.Bytecode)
	if err != nil {
		return ledger.Compiled{}, xerrors.Errorf("failed to store %s: %v", name, err)
	}

	return compiled, nil
}

func (c *Client) counterPrograms() (approval, clear []byte, err error) {
	approval, err = c.store.ReadBytecode(ArtifactCounterApproval)
	if err != nil {
		return nil, nil, missingArtifact(err)
	}

	clear, err = c.store.ReadBytecode(ArtifactCounterClear)
	if err != nil {
		return nil, nil, missingArtifact(err)
	}

	return approval, clear, nil
}

func (c *Client) counterApp() (uint64, error) {
	text, err := c.store.ReadRecord(ArtifactCounterApp)
	if err != nil {
		return 0, missingArtifact(err)
	}

	id, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("malformed application id '%s'", text)
	}

	return id, nil
}

// escrow returns the metadata and the bytecode of the compiled escrow. They
// must describe the same program.
func (c *Client) escrow() (EscrowMeta, []byte, error) {
	var meta EscrowMeta

	err := c.store.ReadMeta(ArtifactEscrow, &meta)
	if err != nil {
		return meta, nil, missingArtifact(err)
	}

	bytecode, err := c.store.ReadBytecode(ArtifactEscrow)
	if err != nil {
		return meta, nil, missingArtifact(err)
	}

	prog, err := program.Decode(bytecode)
	if err != nil {
		return meta, nil, xerrors.Errorf("invalid escrow bytecode: %v", err)
	}

	pred, err := escrow.FromParams(prog.Params)
	if err != nil {
		return meta, nil, xerrors.Errorf("invalid escrow bytecode: %v", err)
	}

	if prog.Template != escrow.Template || prog.Address() != meta.Address ||
		pred.Receiver != meta.Receiver || pred.MaxAmount != meta.MaxAmount {

		return meta, nil, xerrors.New("escrow metadata does not match the bytecode")
	}

	return meta, bytecode, nil
}

func missingArtifact(err error) error {
	if xerrors.Is(err, artifact.ErrMissing) {
		return xerrors.Errorf("%v: %w", err, ErrMissingArtifact)
	}

	return err
}
