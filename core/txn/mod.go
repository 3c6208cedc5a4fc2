// Package txn defines the transactions of the ledger.
//
// A transaction is an atomic request with a discriminated type: a payment that
// moves funds between two accounts, or an application call directed at a
// contract instance. A transaction is immutable once created and it is
// uniquely identified by the digest of its fields. Signing produces a separate
// envelope (see the signed package).
package txn

import (
	"encoding/binary"
	"io"

	"github.com/bitpond/appkit/crypto"
	"golang.org/x/xerrors"
)

// Type is the discriminant of a transaction.
type Type string

const (
	// TypePayment is the type of a transaction that moves funds.
	TypePayment Type = "pay"

	// TypeApplication is the type of a transaction that calls an application.
	TypeApplication Type = "appl"
)

// OnCompletion is the lifecycle action of an application call.
type OnCompletion uint8

const (
	// NoOp is an application call without lifecycle action.
	NoOp OnCompletion = iota

	// OptIn registers the sender as a member of the application.
	OptIn

	// CloseOut removes the sender from the members of the application.
	CloseOut

	// ClearState forcibly removes the sender from the members. Only the clear
	// program of the application is run.
	ClearState

	// Update replaces the programs of the application.
	Update

	// Delete destroys the application instance.
	Delete
)

var completionNames = map[OnCompletion]string{
	NoOp:       "NoOp",
	OptIn:      "OptIn",
	CloseOut:   "CloseOut",
	ClearState: "ClearState",
	Update:     "UpdateApplication",
	Delete:     "DeleteApplication",
}

// String implements fmt.Stringer.
func (oc OnCompletion) String() string {
	name, found := completionNames[oc]
	if !found {
		return "Unknown"
	}

	return name
}

// Params are the parameters suggested by the ledger to create a valid
// transaction.
type Params struct {
	// Fee is the amount paid by the sender for the transaction.
	Fee uint64

	// FirstValid is the first round where the transaction can be included.
	FirstValid uint64

	// LastValid is the last round where the transaction can be included.
	LastValid uint64

	// GenesisID is the identifier of the ledger.
	GenesisID string
}

// Transaction is the data model of a ledger transaction.
type Transaction struct {
	typ    Type
	sender Address
	params Params
	note   []byte

	rekeyTo Address

	// Payment fields.
	receiver         Address
	amount           uint64
	closeRemainderTo Address

	// Application call fields.
	appID        uint64
	onCompletion OnCompletion
	args         [][]byte
	approval     []byte
	clear        []byte

	hash []byte
}

type template struct {
	Transaction

	hashFactory crypto.HashFactory
}

// Option is the type of options to create a transaction.
type Option func(*template)

// WithNote is an option to set an arbitrary note. Two transactions with the
// same fields but a different note have different identifiers.
func WithNote(note []byte) Option {
	return func(tmpl *template) {
		tmpl.note = note
	}
}

// WithRekeyTo is an option to set the address that will be authorized to sign
// for the sender after the transaction.
func WithRekeyTo(addr Address) Option {
	return func(tmpl *template) {
		tmpl.rekeyTo = addr
	}
}

// WithPayment is an option to set the receiver and the amount of a payment.
func WithPayment(receiver Address, amount uint64) Option {
	return func(tmpl *template) {
		tmpl.receiver = receiver
		tmpl.amount = amount
	}
}

// WithCloseRemainderTo is an option to close the sender account and send the
// remaining balance to the address.
func WithCloseRemainderTo(addr Address) Option {
	return func(tmpl *template) {
		tmpl.closeRemainderTo = addr
	}
}

// WithApplication is an option to set the application targeted by the call
// and its lifecycle action. An identifier of zero creates a new application.
func WithApplication(id uint64, oc OnCompletion) Option {
	return func(tmpl *template) {
		tmpl.appID = id
		tmpl.onCompletion = oc
	}
}

// WithArgs is an option to set the arguments of an application call.
func WithArgs(args ...[]byte) Option {
	return func(tmpl *template) {
		tmpl.args = args
	}
}

// WithPrograms is an option to set the approval and the clear programs of an
// application creation or update.
func WithPrograms(approval, clear []byte) Option {
	return func(tmpl *template) {
		tmpl.approval = approval
		tmpl.clear = clear
	}
}

// WithHashFactory is an option to set a different hash factory when creating a
// transaction.
func WithHashFactory(f crypto.HashFactory) Option {
	return func(tmpl *template) {
		tmpl.hashFactory = f
	}
}

// NewTransaction creates a new transaction of the given type.
func NewTransaction(typ Type, sender Address, params Params, opts ...Option) (*Transaction, error) {
	tmpl := template{
		Transaction: Transaction{
			typ:    typ,
			sender: sender,
			params: params,
		},
		hashFactory: crypto.NewSha256Factory(),
	}

	for _, opt := range opts {
		opt(&tmpl)
	}

	err := tmpl.validate()
	if err != nil {
		return nil, xerrors.Errorf("invalid transaction: %v", err)
	}

	h := tmpl.hashFactory.New()
	err = tmpl.Fingerprint(h)
	if err != nil {
		return nil, xerrors.Errorf("couldn't fingerprint tx: %v", err)
	}

	tmpl.hash = h.Sum(nil)

	return &tmpl.Transaction, nil
}

func (t *Transaction) validate() error {
	if t.sender.IsZero() {
		return xerrors.New("missing sender")
	}

	if t.params.LastValid < t.params.FirstValid {
		return xerrors.Errorf("validity window is empty: %d > %d",
			t.params.FirstValid, t.params.LastValid)
	}

	switch t.typ {
	case TypePayment:
		if t.appID != 0 || len(t.args) > 0 || len(t.approval) > 0 || len(t.clear) > 0 {
			return xerrors.New("payment with application fields")
		}
	case TypeApplication:
		if !t.receiver.IsZero() || t.amount != 0 || !t.closeRemainderTo.IsZero() {
			return xerrors.New("application call with payment fields")
		}

		if t.onCompletion > Delete {
			return xerrors.Errorf("unknown completion %d", t.onCompletion)
		}
	default:
		return xerrors.Errorf("unknown type '%s'", t.typ)
	}

	return nil
}

// GetID returns the unique identifier of the transaction.
func (t *Transaction) GetID() []byte {
	return append([]byte{}, t.hash...)
}

// GetType returns the type of the transaction.
func (t *Transaction) GetType() Type {
	return t.typ
}

// GetSender returns the address of the account sending the transaction.
func (t *Transaction) GetSender() Address {
	return t.sender
}

// GetParams returns the fee and validity parameters.
func (t *Transaction) GetParams() Params {
	return t.params
}

// GetNote returns the note of the transaction.
func (t *Transaction) GetNote() []byte {
	return append([]byte{}, t.note...)
}

// GetRekeyTo returns the address that will be authorized to sign for the
// sender, or the zero address.
func (t *Transaction) GetRekeyTo() Address {
	return t.rekeyTo
}

// GetReceiver returns the receiver of a payment.
func (t *Transaction) GetReceiver() Address {
	return t.receiver
}

// GetAmount returns the amount of a payment.
func (t *Transaction) GetAmount() uint64 {
	return t.amount
}

// GetCloseRemainderTo returns the address receiving the remaining balance of
// the sender, or the zero address.
func (t *Transaction) GetCloseRemainderTo() Address {
	return t.closeRemainderTo
}

// GetAppID returns the identifier of the application called, or zero for a
// creation.
func (t *Transaction) GetAppID() uint64 {
	return t.appID
}

// GetOnCompletion returns the lifecycle action of an application call.
func (t *Transaction) GetOnCompletion() OnCompletion {
	return t.onCompletion
}

// GetArgs returns the arguments of an application call.
func (t *Transaction) GetArgs() [][]byte {
	args := make([][]byte, len(t.args))
	for i, arg := range t.args {
		args[i] = append([]byte{}, arg...)
	}

	return args
}

// GetApprovalProgram returns the approval program of a creation or update.
func (t *Transaction) GetApprovalProgram() []byte {
	return append([]byte{}, t.approval...)
}

// GetClearProgram returns the clear program of a creation or update.
func (t *Transaction) GetClearProgram() []byte {
	return append([]byte{}, t.clear...)
}

// IsCreate returns true if the transaction creates an application.
func (t *Transaction) IsCreate() bool {
	return t.typ == TypeApplication && t.appID == 0
}

// Fingerprint implements serde.Fingerprinter. It writes a deterministic binary
// representation of the transaction.
func (t *Transaction) Fingerprint(w io.Writer) error {
	fw := fingerprintWriter{w: w}

	fw.writeBytes([]byte(t.typ))
	fw.writeBytes(t.sender[:])
	fw.writeUint(t.params.Fee)
	fw.writeUint(t.params.FirstValid)
	fw.writeUint(t.params.LastValid)
	fw.writeBytes([]byte(t.params.GenesisID))
	fw.writeBytes(t.note)
	fw.writeBytes(t.rekeyTo[:])
	fw.writeBytes(t.receiver[:])
	fw.writeUint(t.amount)
	fw.writeBytes(t.closeRemainderTo[:])
	fw.writeUint(t.appID)
	fw.writeUint(uint64(t.onCompletion))
	fw.writeUint(uint64(len(t.args)))

	for _, arg := range t.args {
		fw.writeBytes(arg)
	}

	fw.writeBytes(t.approval)
	fw.writeBytes(t.clear)

	if fw.err != nil {
		return xerrors.Errorf("couldn't write fingerprint: %v", fw.err)
	}

	return nil
}

// fingerprintWriter writes length-prefixed fields and remembers the first
// error.
type fingerprintWriter struct {
	w   io.Writer
	err error
}

func (fw *fingerprintWriter) writeUint(v uint64) {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, v)

	fw.write(buffer)
}

func (fw *fingerprintWriter) writeBytes(data []byte) {
	fw.writeUint(uint64(len(data)))
	fw.write(data)
}

func (fw *fingerprintWriter) write(data []byte) {
	if fw.err != nil {
		return
	}

	_, fw.err = fw.w.Write(data)
}
