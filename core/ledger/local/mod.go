// Package local implements a ledger that runs in the process.
//
// The node collects submitted transactions in a pool and produces a round at a
// regular interval. Every transaction of the pool is applied on a staging
// snapshot of the state, and the snapshot is written to the database only when
// the transaction is accepted, so that a transaction is applied either in full
// or not at all. The identifier of every processed transaction is recorded with
// its outcome, which makes a transaction apply at most once.
package local

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bitpond/appkit"
	"github.com/bitpond/appkit/core"
	"github.com/bitpond/appkit/core/execution"
	"github.com/bitpond/appkit/core/ledger"
	"github.com/bitpond/appkit/core/program"
	"github.com/bitpond/appkit/core/store"
	"github.com/bitpond/appkit/core/store/kv"
	"github.com/bitpond/appkit/core/store/mem"
	"github.com/bitpond/appkit/core/store/prefixed"
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
	"gopkg.in/tomb.v2"
)

const (
	// DefaultGenesisID is the identifier of a ledger created without one.
	DefaultGenesisID = "appkit-dev"

	// DefaultRoundInterval is the time between two rounds.
	DefaultRoundInterval = time.Second

	// DefaultMinFee is the minimum fee of a transaction.
	DefaultMinFee = 1000

	// DefaultValidityWindow is the maximum number of rounds a transaction can
	// be valid for.
	DefaultValidityWindow = 1000
)

// RoundEvent is the event notified after a round is produced.
type RoundEvent struct {
	Round    uint64
	Accepted int
	Rejected int
}

// Node is a ledger that runs in the process.
//
// - implements ledger.Service
type Node struct {
	sync.Mutex

	db       kv.DB
	host     host
	pool     *pool
	interval time.Duration
	watcher  *core.Watcher[RoundEvent]
	logger   zerolog.Logger

	lifecycle sync.Mutex
	started   bool
	tomb      tomb.Tomb
}

type nodeTemplate struct {
	genesis  Genesis
	interval time.Duration
	minFee   uint64
	window   uint64
}

// NodeOption is the type of options to create a node.
type NodeOption func(*nodeTemplate)

// WithGenesis is an option to set the initial state of the ledger. It is
// applied only if the database has no genesis yet.
func WithGenesis(genesis Genesis) NodeOption {
	return func(tmpl *nodeTemplate) {
		tmpl.genesis = genesis
	}
}

// WithRoundInterval is an option to set the time between two rounds.
func WithRoundInterval(interval time.Duration) NodeOption {
	return func(tmpl *nodeTemplate) {
		tmpl.interval = interval
	}
}

// WithMinFee is an option to set the minimum fee of a transaction.
func WithMinFee(fee uint64) NodeOption {
	return func(tmpl *nodeTemplate) {
		tmpl.minFee = fee
	}
}

// WithValidityWindow is an option to set the maximum number of rounds a
// transaction can be valid for.
func WithValidityWindow(rounds uint64) NodeOption {
	return func(tmpl *nodeTemplate) {
		tmpl.window = rounds
	}
}

// NewNode creates a node on top of the database. The programs of the
// applications and the logic signatures are run by the execution service.
func NewNode(db kv.DB, exec execution.Service, opts ...NodeOption) (*Node, error) {
	tmpl := nodeTemplate{
		interval: DefaultRoundInterval,
		minFee:   DefaultMinFee,
		window:   DefaultValidityWindow,
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	if tmpl.genesis.GenesisID == "" {
		tmpl.genesis.GenesisID = DefaultGenesisID
	}

	logger := appkit.Logger.With().Str("component", "ledger").Logger()

	var genesisID []byte

	err := db.Update(func(wtx kv.WritableTx) error {
		bucket, err := wtx.GetBucketOrCreate(bucketName)
		if err != nil {
			return xerrors.Errorf("failed to create bucket: %v", err)
		}

		base := bucketStore{bucket: bucket}

		applied, err := tmpl.genesis.apply(base)
		if err != nil {
			return err
		}

		if applied {
			logger.Info().
				Str("genesis", tmpl.genesis.GenesisID).
				Int("accounts", len(tmpl.genesis.Balances)).
				Msg("genesis applied")
		}

		genesisID, err = base.Get(keyGenesis)

		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to initialize: %v", err)
	}

	n := &Node{
		db: db,
		host: host{
			exec:      exec,
			genesisID: string(genesisID),
			minFee:    tmpl.minFee,
			window:    tmpl.window,
		},
		pool:     newPool(),
		interval: tmpl.interval,
		watcher:  core.NewWatcher[RoundEvent](),
		logger:   logger,
	}

	return n, nil
}

// GenesisID returns the identifier of the ledger.
func (n *Node) GenesisID() string {
	return n.host.genesisID
}

// Start starts to produce rounds in the background. It does nothing if the
// node is already started.
func (n *Node) Start() {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if n.started {
		return
	}

	n.started = true
	n.tomb.Go(n.worker)

	n.logger.Info().Dur("interval", n.interval).Msg("round producer started")
}

// Stop stops the production of rounds and waits for the current one to end. A
// stopped node cannot be started again.
func (n *Node) Stop() error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if !n.started {
		return nil
	}

	n.tomb.Kill(nil)

	err := n.tomb.Wait()
	if err != nil {
		return xerrors.Errorf("round producer failed: %v", err)
	}

	return nil
}

func (n *Node) worker() error {
	for {
		select {
		case <-time.After(n.interval):
		case <-n.tomb.Dying():
			return tomb.ErrDying
		}

		_, err := n.Produce()
		if err != nil {
			n.logger.Err(err).Msg("failed to produce round")
		}
	}
}

// Watch returns a channel populated with the rounds produced until the context
// is done. Events are dropped when the channel is full.
func (n *Node) Watch(ctx context.Context) <-chan RoundEvent {
	obs := roundObserver{ch: make(chan RoundEvent, 10)}

	n.watcher.Add(obs)

	go func() {
		<-ctx.Done()
		n.watcher.Remove(obs)
		close(obs.ch)
	}()

	return obs.ch
}

// Produce applies the transactions of the pool in a new round.
func (n *Node) Produce() (RoundEvent, error) {
	n.Lock()
	defer n.Unlock()

	txs := n.pool.Gather()

	var evt RoundEvent

	err := n.db.Update(func(wtx kv.WritableTx) error {
		bucket, err := wtx.GetBucketOrCreate(bucketName)
		if err != nil {
			return xerrors.Errorf("failed to get bucket: %v", err)
		}

		base := bucketStore{bucket: bucket}

		round, err := readUint(base, keyRound)
		if err != nil {
			return err
		}

		round++

		for _, stx := range txs {
			_, found, err := readTx(base, stx.GetID())
			if err != nil {
				return err
			}

			if found {
				continue
			}

			stage := mem.NewSnapshot(base)

			res, err := n.host.Apply(stage, stx, round)
			if err != nil {
				return xerrors.Errorf("failed to apply tx %#x: %v", stx.GetID(), err)
			}

			if res.accepted {
				err = stage.Apply(base)
				if err != nil {
					return xerrors.Errorf("failed to stage tx %#x: %v", stx.GetID(), err)
				}

				evt.Accepted++
			} else {
				evt.Rejected++

				n.logger.Debug().
					Hex("tx", stx.GetID()).
					Str("reason", res.reason).
					Msg("transaction rejected")
			}

			rec := txRecord{
				Accepted: res.accepted,
				Round:    round,
				Reason:   res.reason,
				AppID:    res.appID,
			}

			err = writeTx(base, stx.GetID(), rec)
			if err != nil {
				return err
			}
		}

		evt.Round = round

		return writeUint(base, keyRound, round)
	})
	if err != nil {
		return RoundEvent{}, xerrors.Errorf("round failed: %v", err)
	}

	n.pool.Remove(txs)

	promRound.Set(float64(evt.Round))
	promRoundTxs.Observe(float64(evt.Accepted + evt.Rejected))
	promTxs.WithLabelValues("accepted").Add(float64(evt.Accepted))
	promTxs.WithLabelValues("rejected").Add(float64(evt.Rejected))
	promPool.Set(float64(n.pool.Len()))

	if evt.Accepted+evt.Rejected > 0 {
		n.logger.Info().
			Uint64("round", evt.Round).
			Int("accepted", evt.Accepted).
			Int("rejected", evt.Rejected).
			Msg("round produced")
	}

	n.watcher.Notify(evt)

	return evt, nil
}

// Fund credits the account out of thin air. It is meant for development
// ledgers only.
func (n *Node) Fund(addr txn.Address, amount uint64) error {
	n.Lock()
	defer n.Unlock()

	err := n.db.Update(func(wtx kv.WritableTx) error {
		bucket, err := wtx.GetBucketOrCreate(bucketName)
		if err != nil {
			return xerrors.Errorf("failed to get bucket: %v", err)
		}

		res, err := credit(bucketStore{bucket: bucket}, addr, amount)
		if err != nil {
			return err
		}

		if !res.accepted {
			return xerrors.New(res.reason)
		}

		return nil
	})
	if err != nil {
		return xerrors.Errorf("failed to fund: %v", err)
	}

	n.logger.Info().Stringer("address", addr).Uint64("amount", amount).Msg("account funded")

	return nil
}

// Compile implements ledger.Service. It compiles the source and makes sure the
// program is known by the node.
func (n *Node) Compile(ctx context.Context, source string) (ledger.Compiled, error) {
	prog, err := program.Compile(source)
	if err != nil {
		return ledger.Compiled{}, xerrors.Errorf("failed to compile: %v", err)
	}

	err = n.host.exec.Validate(prog.Bytecode)
	if err != nil {
		return ledger.Compiled{}, xerrors.Errorf("invalid program: %v", err)
	}

	res := ledger.Compiled{
		Bytecode: prog.Bytecode,
		Address:  prog.Address(),
	}

	return res, nil
}

// SuggestedParams implements ledger.Service. The transactions built with the
// parameters are valid for the whole window starting at the next round.
func (n *Node) SuggestedParams(ctx context.Context) (txn.Params, error) {
	var round uint64

	err := n.db.View(func(tx kv.ReadableTx) error {
		var err error
		round, err = readUint(readableOf(tx), keyRound)

		return err
	})
	if err != nil {
		return txn.Params{}, xerrors.Errorf("failed to read round: %v", err)
	}

	params := txn.Params{
		Fee:        n.host.minFee,
		FirstValid: round + 1,
		LastValid:  round + n.host.window,
		GenesisID:  n.host.genesisID,
	}

	return params, nil
}

// Submit implements ledger.Service. The transaction is evaluated against the
// state that includes the pending transactions so that a transaction that
// would be rejected in the next round is refused immediately.
func (n *Node) Submit(ctx context.Context, stx *signed.Transaction) (string, error) {
	n.Lock()
	defer n.Unlock()

	if n.pool.Has(stx.GetID()) {
		return "", ledger.ErrAlreadySeen
	}

	var res outcome
	seen := false

	err := n.db.View(func(tx kv.ReadableTx) error {
		r := readableOf(tx)

		_, found, err := readTx(r, stx.GetID())
		if err != nil {
			return err
		}

		if found {
			seen = true
			return nil
		}

		round, err := readUint(r, keyRound)
		if err != nil {
			return err
		}

		pending := mem.NewSnapshot(r)

		for _, other := range n.pool.Gather() {
			stage := mem.NewSnapshot(pending)

			out, err := n.host.Apply(stage, other, round+1)
			if err != nil {
				return err
			}

			if out.accepted {
				err = stage.Apply(pending)
				if err != nil {
					return err
				}
			}
		}

		res, err = n.host.Apply(mem.NewSnapshot(pending), stx, round+1)

		return err
	})
	if err != nil {
		return "", xerrors.Errorf("failed to evaluate: %v", err)
	}

	if seen {
		return "", ledger.ErrAlreadySeen
	}

	if !res.accepted {
		return "", ledger.NewRejectedError(res.reason)
	}

	n.pool.Add(stx)

	promPool.Set(float64(n.pool.Len()))

	id := ledger.TxID(stx)

	n.logger.Debug().Str("tx", id).Msg("transaction submitted")

	return id, nil
}

// Status implements ledger.Service.
func (n *Node) Status(ctx context.Context, id string) (ledger.Status, error) {
	raw, err := hex.DecodeString(id)
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("malformed id '%s': %v", id, err)
	}

	var status ledger.Status

	err = n.db.View(func(tx kv.ReadableTx) error {
		r := readableOf(tx)

		last, err := readUint(r, keyRound)
		if err != nil {
			return err
		}

		status.LastRound = last

		rec, found, err := readTx(r, raw)
		if err != nil {
			return err
		}

		if !found {
			return nil
		}

		status.Round = rec.Round
		status.Reason = rec.Reason
		status.AppID = rec.AppID
		status.State = ledger.StateRejected

		if rec.Accepted {
			status.State = ledger.StateConfirmed
		}

		return nil
	})
	if err != nil {
		return ledger.Status{}, xerrors.Errorf("failed to read status: %v", err)
	}

	if status.State == "" {
		if !n.pool.Has(raw) {
			return ledger.Status{}, xerrors.Errorf("transaction %s: %w", id, ledger.ErrNotFound)
		}

		status.State = ledger.StatePending
	}

	return status, nil
}

// GetApplicationState implements ledger.Service.
func (n *Node) GetApplicationState(ctx context.Context, id uint64) (map[string]execution.Value, error) {
	state := make(map[string]execution.Value)
	found := false

	err := n.db.View(func(tx kv.ReadableTx) error {
		r := readableOf(tx)

		var err error
		_, found, err = readApp(r, id)
		if err != nil || !found {
			return err
		}

		gs := prefixed.NewReadable(appPrefix(id)+"gs/", r).(store.Iterable)

		return gs.Scan(nil, func(k, v []byte) error {
			value, err := execution.DecodeValue(v)
			if err != nil {
				return xerrors.Errorf("key '%s': %v", k, err)
			}

			state[string(k)] = value

			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to read application: %v", err)
	}

	if !found {
		return nil, xerrors.Errorf("application %d: %w", id, ledger.ErrNotFound)
	}

	return state, nil
}

// GetAccount implements ledger.Service. An account that was never funded has a
// zero balance.
func (n *Node) GetAccount(ctx context.Context, addr txn.Address) (ledger.Account, error) {
	var acct account

	err := n.db.View(func(tx kv.ReadableTx) error {
		var err error
		acct, err = readAccount(readableOf(tx), addr)

		return err
	})
	if err != nil {
		return ledger.Account{}, xerrors.Errorf("failed to read account: %v", err)
	}

	res := ledger.Account{
		Address:  addr,
		Balance:  acct.balance,
		AuthAddr: acct.authAddr,
	}

	return res, nil
}

// roundObserver forwards the events to a channel without blocking.
//
// - implements core.Observer
type roundObserver struct {
	ch chan RoundEvent
}

func (o roundObserver) NotifyCallback(evt RoundEvent) {
	select {
	case o.ch <- evt:
	default:
	}
}
