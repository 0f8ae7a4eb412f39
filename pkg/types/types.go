package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Token represents an ERC20 token known to the registry
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Rank     uint8 // main currency weight, 0 for ordinary tokens
}

// IsMain reports whether the token is one of the recognized quote assets
func (t Token) IsMain() bool {
	return t.Rank > 0
}

// Pool represents a two-token constant-product pool
type Pool struct {
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Protocol string // "uniswap_v2"
	Version  uint8
}

// BlockContext describes the latest head. It is replaced wholesale on every block.
type BlockContext struct {
	Number      uint64
	BaseFee     *big.Int
	NextBaseFee *big.Int
	GasUsed     uint64
	GasLimit    uint64
	ReceivedAt  time.Time
}

// TargetBlock is the block a bundle built on this head competes for
func (b *BlockContext) TargetBlock() uint64 {
	return b.Number + 1
}

// PendingTx is an unconfirmed transaction as delivered by the event source
type PendingTx struct {
	Hash      common.Hash
	From      common.Address
	To        *common.Address
	Data      []byte
	Value     *big.Int
	Type      uint8
	GasPrice  *big.Int // legacy gas price, equal to GasFeeCap for fee-market txs
	GasFeeCap *big.Int
	GasTipCap *big.Int
	Gas       uint64
	Nonce     uint64
	Raw       []byte // signed envelope, replayed verbatim inside bundles
}

// NewPendingTx flattens a signed transaction into a PendingTx
func NewPendingTx(tx *ethtypes.Transaction, from common.Address) (*PendingTx, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &PendingTx{
		Hash:      tx.Hash(),
		From:      from,
		To:        tx.To(),
		Data:      tx.Data(),
		Value:     tx.Value(),
		Type:      tx.Type(),
		GasPrice:  tx.GasPrice(),
		GasFeeCap: tx.GasFeeCap(),
		GasTipCap: tx.GasTipCap(),
		Gas:       tx.Gas(),
		Nonce:     tx.Nonce(),
		Raw:       raw,
	}, nil
}

// Victim freezes the fields needed to replay the transaction in a simulation
func (p *PendingTx) Victim() VictimTx {
	var to common.Address
	if p.To != nil {
		to = *p.To
	}
	gasPrice := p.GasPrice
	if p.Type == ethtypes.DynamicFeeTxType {
		gasPrice = p.GasFeeCap
	}
	return VictimTx{
		Hash:     p.Hash,
		From:     p.From,
		To:       to,
		Data:     append([]byte(nil), p.Data...),
		Value:    copyBig(p.Value),
		GasPrice: copyBig(gasPrice),
		Gas:      p.Gas,
		Raw:      append([]byte(nil), p.Raw...),
	}
}

// TrackedTx is a pending transaction owned by the tracker
type TrackedTx struct {
	Tx             *PendingTx
	FirstSeenBlock uint64
	Evaluated      bool
	Swaps          []SwapInfo
	Candidates     []Candidate
}

// Age returns the number of blocks since the transaction was first seen
func (t *TrackedTx) Age(current uint64) uint64 {
	if current < t.FirstSeenBlock {
		return 0
	}
	return current - t.FirstSeenBlock
}

// Direction is the victim's side of a swap relative to the target token
type Direction uint8

const (
	Buy  Direction = iota + 1 // victim acquires the target token with the main currency
	Sell                      // victim disposes of the target token for the main currency
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// SwapInfo is a single classified AMM swap performed by a pending transaction
type SwapInfo struct {
	TxHash         common.Hash
	Pool           common.Address
	MainCurrency   common.Address
	TargetToken    common.Address
	TargetDecimals uint8
	Version        uint8
	Token0IsMain   bool
	Direction      Direction
	AmountIn       *big.Int // amount the victim paid into the pool
	AmountOut      *big.Int // amount the victim received from the pool
}

// VictimTx is an immutable snapshot of the victim transaction
type VictimTx struct {
	Hash     common.Hash
	From     common.Address
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasPrice *big.Int
	Gas      uint64
	Raw      []byte
}

// Candidate is a sandwich structure derived from one swap
type Candidate struct {
	TrialAmount *big.Int
	Swap        SwapInfo
	Victim      VictimTx
	Optimized   *OptimizedSandwich
}

// OptimizedSandwich holds the profit-maximizing parameters for a candidate
type OptimizedSandwich struct {
	AmountIn        *big.Int
	TargetAmountOut *big.Int // target tokens bought by the front leg and sold by the back leg
	Revenue         *big.Int // net of gas, in main currency units
	GasCost         *big.Int // in main currency units
	FrontGas        uint64
	BackGas         uint64
	FrontAccessList ethtypes.AccessList
	BackAccessList  ethtypes.AccessList
	FrontCalldata   []byte
	BackCalldata    []byte
}

// Bundle is an ordered group of optimized sandwiches targeting the same block
type Bundle struct {
	TargetBlock uint64
	BaseFee     *big.Int
	Sandwiches  []Candidate
}

// VictimHashes returns the victim hashes in bundle order
func (b *Bundle) VictimHashes() []common.Hash {
	hashes := make([]common.Hash, 0, len(b.Sandwiches))
	for _, s := range b.Sandwiches {
		hashes = append(hashes, s.Victim.Hash)
	}
	return hashes
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// Submission is the backend's answer for a bundle accepted by at least one relay
type Submission struct {
	BundleID string      // relay-assigned bundle hash
	TxHash   common.Hash // first front-run leg, representative of the bundle
	Relays   []string    // relays that accepted
}
