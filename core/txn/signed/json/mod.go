// Package json implements the JSON format of the signed transactions.
package json

import (
	"github.com/bitpond/appkit/core/txn"
	"github.com/bitpond/appkit/core/txn/signed"
	"github.com/bitpond/appkit/crypto"
	"github.com/bitpond/appkit/serde"
	"golang.org/x/xerrors"
)

func init() {
	signed.RegisterTransactionFormat(serde.FormatJSON, txFormat{})
}

// TransactionJSON is the JSON message of a transaction. Addresses are in their
// text form and the zero address is omitted.
type TransactionJSON struct {
	Type             string
	Sender           string
	Fee              uint64
	FirstValid       uint64
	LastValid        uint64
	GenesisID        string
	Note             []byte   `json:",omitempty"`
	RekeyTo          string   `json:",omitempty"`
	Receiver         string   `json:",omitempty"`
	Amount           uint64   `json:",omitempty"`
	CloseRemainderTo string   `json:",omitempty"`
	AppID            uint64   `json:",omitempty"`
	OnCompletion     uint8    `json:",omitempty"`
	Args             [][]byte `json:",omitempty"`
	Approval         []byte   `json:",omitempty"`
	Clear            []byte   `json:",omitempty"`
}

// SignedJSON is the JSON message of a signed transaction.
type SignedJSON struct {
	Transaction TransactionJSON
	PublicKey   []byte `json:",omitempty"`
	Signature   []byte `json:",omitempty"`
	LogicSig    []byte `json:",omitempty"`
}

// txFormat is the JSON format engine for signed transactions.
//
// - implements serde.FormatEngine
type txFormat struct {
	hashFactory crypto.HashFactory
}

// Encode implements serde.FormatEngine. It returns the JSON data of the
// provided transaction if appropriate, otherwise it returns an error.
func (f txFormat) Encode(ctx serde.Context, msg serde.Message) ([]byte, error) {
	stx, ok := msg.(*signed.Transaction)
	if !ok {
		return nil, xerrors.Errorf("unsupported message of type '%T'", msg)
	}

	tx := stx.GetTransaction()
	if tx == nil {
		return nil, xerrors.New("missing transaction")
	}

	params := tx.GetParams()

	m := SignedJSON{
		Transaction: TransactionJSON{
			Type:             string(tx.GetType()),
			Sender:           tx.GetSender().String(),
			Fee:              params.Fee,
			FirstValid:       params.FirstValid,
			LastValid:        params.LastValid,
			GenesisID:        params.GenesisID,
			Note:             tx.GetNote(),
			RekeyTo:          addressText(tx.GetRekeyTo()),
			Receiver:         addressText(tx.GetReceiver()),
			Amount:           tx.GetAmount(),
			CloseRemainderTo: addressText(tx.GetCloseRemainderTo()),
			AppID:            tx.GetAppID(),
			OnCompletion:     uint8(tx.GetOnCompletion()),
			Args:             tx.GetArgs(),
			Approval:         tx.GetApprovalProgram(),
			Clear:            tx.GetClearProgram(),
		},
		LogicSig: stx.GetLogicSig(),
	}

	if !stx.IsLogicSig() {
		pubkey, err := stx.GetPublicKey().MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("failed to encode public key: %v", err)
		}

		sig, err := stx.GetSignature().MarshalBinary()
		if err != nil {
			return nil, xerrors.Errorf("failed to encode signature: %v", err)
		}

		m.PublicKey = pubkey
		m.Signature = sig
	}

	data, err := ctx.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal: %v", err)
	}

	return data, nil
}

// Decode implements serde.FormatEngine. It returns the signed transaction from
// the JSON data if appropriate, otherwise it returns an error.
func (f txFormat) Decode(ctx serde.Context, data []byte) (serde.Message, error) {
	m := SignedJSON{}
	err := ctx.Unmarshal(data, &m)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal: %v", err)
	}

	tx, err := f.decodeTx(m.Transaction)
	if err != nil {
		return nil, xerrors.Errorf("failed to create tx: %v", err)
	}

	opts := []signed.Option{}

	if len(m.LogicSig) > 0 {
		opts = append(opts, signed.WithLogicSig(m.LogicSig))
	}

	if len(m.PublicKey) > 0 || len(m.Signature) > 0 {
		pubkey, sig, err := decodeSignature(ctx, m)
		if err != nil {
			return nil, err
		}

		opts = append(opts, signed.WithSignature(pubkey, sig))
	}

	stx, err := signed.NewTransaction(tx, opts...)
	if err != nil {
		return nil, xerrors.Errorf("invalid signed tx: %v", err)
	}

	return stx, nil
}

func (f txFormat) decodeTx(m TransactionJSON) (*txn.Transaction, error) {
	sender, err := txn.ParseAddress(m.Sender)
	if err != nil {
		return nil, xerrors.Errorf("sender: %v", err)
	}

	rekeyTo, err := parseAddress(m.RekeyTo)
	if err != nil {
		return nil, xerrors.Errorf("rekey to: %v", err)
	}

	receiver, err := parseAddress(m.Receiver)
	if err != nil {
		return nil, xerrors.Errorf("receiver: %v", err)
	}

	closeTo, err := parseAddress(m.CloseRemainderTo)
	if err != nil {
		return nil, xerrors.Errorf("close remainder to: %v", err)
	}

	params := txn.Params{
		Fee:        m.Fee,
		FirstValid: m.FirstValid,
		LastValid:  m.LastValid,
		GenesisID:  m.GenesisID,
	}

	opts := []txn.Option{
		txn.WithNote(m.Note),
		txn.WithRekeyTo(rekeyTo),
	}

	switch txn.Type(m.Type) {
	case txn.TypePayment:
		opts = append(opts,
			txn.WithPayment(receiver, m.Amount),
			txn.WithCloseRemainderTo(closeTo))
	default:
		opts = append(opts,
			txn.WithApplication(m.AppID, txn.OnCompletion(m.OnCompletion)),
			txn.WithArgs(m.Args...),
			txn.WithPrograms(m.Approval, m.Clear))
	}

	if f.hashFactory != nil {
		opts = append(opts, txn.WithHashFactory(f.hashFactory))
	}

	return txn.NewTransaction(txn.Type(m.Type), sender, params, opts...)
}

func decodeSignature(ctx serde.Context, m SignedJSON) (crypto.PublicKey, crypto.Signature, error) {
	fac := ctx.GetFactory(signed.PublicKeyFac{})

	pubkeyFac, ok := fac.(crypto.PublicKeyFactory)
	if !ok {
		return nil, nil, xerrors.Errorf("public key: invalid factory '%T'", fac)
	}

	pubkey, err := pubkeyFac.FromBytes(m.PublicKey)
	if err != nil {
		return nil, nil, xerrors.Errorf("public key: %v", err)
	}

	fac = ctx.GetFactory(signed.SignatureFac{})

	sigFac, ok := fac.(crypto.SignatureFactory)
	if !ok {
		return nil, nil, xerrors.Errorf("signature: invalid factory '%T'", fac)
	}

	sig, err := sigFac.SignatureOf(m.Signature)
	if err != nil {
		return nil, nil, xerrors.Errorf("signature: %v", err)
	}

	return pubkey, sig, nil
}

func addressText(addr txn.Address) string {
	if addr.IsZero() {
		return ""
	}

	return addr.String()
}

func parseAddress(text string) (txn.Address, error) {
	if text == "" {
		return txn.ZeroAddress, nil
	}

	return txn.ParseAddress(text)
}
