package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// CallArgs is the transaction object accepted by debug_traceCall
type CallArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	Data                 hexutil.Bytes   `json:"data"`
	Nonce                hexutil.Uint64  `json:"nonce"`
}

// CallLog is a log emitted inside a call frame
type CallLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// CallFrame is one node of the callTracer output
type CallFrame struct {
	Type    string          `json:"type"`
	From    common.Address  `json:"from"`
	To      *common.Address `json:"to,omitempty"`
	Input   hexutil.Bytes   `json:"input"`
	Output  hexutil.Bytes   `json:"output,omitempty"`
	Error   string          `json:"error,omitempty"`
	GasUsed hexutil.Uint64  `json:"gasUsed"`
	Calls   []CallFrame     `json:"calls,omitempty"`
	Logs    []CallLog       `json:"logs,omitempty"`
}

type tracerConfig struct {
	WithLog bool `json:"withLog"`
}

type traceCallConfig struct {
	Tracer       string       `json:"tracer"`
	TracerConfig tracerConfig `json:"tracerConfig"`
}

// TraceCall executes args on top of the given block with the callTracer and
// returns the root frame including logs from every depth. It is a hot-path
// simulation call and is not retried.
func (c *Client) TraceCall(ctx context.Context, args CallArgs, blockNumber *big.Int) (*CallFrame, error) {
	var frame CallFrame
	cfg := traceCallConfig{
		Tracer:       "callTracer",
		TracerConfig: tracerConfig{WithLog: true},
	}
	if err := c.rpc.CallContext(ctx, &frame, "debug_traceCall", args, hexutil.EncodeBig(blockNumber), cfg); err != nil {
		return nil, fmt.Errorf("failed to trace call: %w", err)
	}
	return &frame, nil
}
