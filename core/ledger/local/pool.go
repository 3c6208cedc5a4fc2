package local

import (
	"sync"

	"github.com/bitpond/appkit/core/txn/signed"
)

// key is the key of a transaction in the pool.
type key [32]byte

func keyOf(tx *signed.Transaction) key {
	k := key{}
	copy(k[:], tx.GetID())

	return k
}

// pool is an in-memory transaction pool. Transactions are gathered in the
// order of their arrival.
type pool struct {
	sync.Mutex
	txs   map[key]*signed.Transaction
	order []key
}

func newPool() *pool {
	return &pool{
		txs: make(map[key]*signed.Transaction),
	}
}

// Add adds the transaction to the pool. It returns false if the transaction is
// already waiting.
func (p *pool) Add(tx *signed.Transaction) bool {
	k := keyOf(tx)

	p.Lock()
	defer p.Unlock()

	_, found := p.txs[k]
	if found {
		return false
	}

	p.txs[k] = tx
	p.order = append(p.order, k)

	return true
}

// Has returns true if the transaction is waiting in the pool.
func (p *pool) Has(id []byte) bool {
	k := key{}
	copy(k[:], id)

	p.Lock()
	_, found := p.txs[k]
	p.Unlock()

	return found
}

// Gather returns the transactions of the pool, the oldest first.
func (p *pool) Gather() []*signed.Transaction {
	p.Lock()
	defer p.Unlock()

	txs := make([]*signed.Transaction, len(p.order))
	for i, k := range p.order {
		txs[i] = p.txs[k]
	}

	return txs
}

// Remove removes the transactions from the pool.
func (p *pool) Remove(txs []*signed.Transaction) {
	p.Lock()
	defer p.Unlock()

	for _, tx := range txs {
		delete(p.txs, keyOf(tx))
	}

	order := p.order[:0]
	for _, k := range p.order {
		if _, found := p.txs[k]; found {
			order = append(order, k)
		}
	}

	p.order = order
}

// Len returns the number of transactions waiting.
func (p *pool) Len() int {
	p.Lock()
	defer p.Unlock()

	return len(p.txs)
}
