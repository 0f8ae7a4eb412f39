package execution

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/devlongs/sandwich-bot/internal/config"
	"github.com/devlongs/sandwich-bot/internal/metrics"
	"github.com/devlongs/sandwich-bot/pkg/types"
)

// ErrNoRelayAccepted is returned when every relay rejected the bundle
var ErrNoRelayAccepted = errors.New("no relay accepted the bundle")

// NonceSource reports the owner's next nonce
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Executor signs the bot's legs and fans bundles out to relays
type Executor struct {
	key         *ecdsa.PrivateKey
	owner       common.Address
	signer      ethtypes.Signer
	chainID     *big.Int
	bot         common.Address
	nonces      NonceSource
	relays      []Relay
	priorityFee *big.Int
	dryRun      bool
	metrics     *metrics.Metrics
}

// NewExecutor parses the owner and identity keys and builds the relay set
func NewExecutor(cfg config.ExecutionConfig, botAddress string, chainID *big.Int, nonces NonceSource, m *metrics.Metrics) (*Executor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	identity, err := identityKey(cfg.IdentityKey)
	if err != nil {
		return nil, err
	}

	if !common.IsHexAddress(botAddress) {
		return nil, fmt.Errorf("invalid bot address %q", botAddress)
	}

	relays := cfg.Relays
	if len(relays) == 0 {
		relays = config.DefaultRelays
	}

	return &Executor{
		key:         key,
		owner:       crypto.PubkeyToAddress(key.PublicKey),
		signer:      ethtypes.LatestSignerForChainID(chainID),
		chainID:     chainID,
		bot:         common.HexToAddress(botAddress),
		nonces:      nonces,
		relays:      NewRelays(relays, cfg.SignedRelays, identity),
		priorityFee: big.NewInt(cfg.PriorityFeeWei),
		dryRun:      cfg.DryRun,
		metrics:     m,
	}, nil
}

// identityKey parses the Flashbots reputation key, generating a throwaway one when unset
func identityKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return crypto.GenerateKey()
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid identity key: %w", err)
	}
	return key, nil
}

// Owner returns the address signing the bot's legs
func (e *Executor) Owner() common.Address {
	return e.owner
}

// Relays returns the configured relays
func (e *Executor) Relays() []Relay {
	return e.relays
}

// BuildTransactions signs the front and back legs with consecutive nonces and
// orders the bundle as fronts, victims, backs. It also returns the first
// front leg hash.
func (e *Executor) BuildTransactions(ctx context.Context, b *types.Bundle) ([]hexutil.Bytes, common.Hash, error) {
	if len(b.Sandwiches) == 0 {
		return nil, common.Hash{}, errors.New("empty bundle")
	}
	nonce, err := e.nonces.PendingNonceAt(ctx, e.owner)
	if err != nil {
		return nil, common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	n := len(b.Sandwiches)
	fronts := make([]hexutil.Bytes, 0, n)
	victims := make([]hexutil.Bytes, 0, n)
	backs := make([]hexutil.Bytes, 0, n)
	var first common.Hash

	for i, s := range b.Sandwiches {
		opt := s.Optimized
		if opt == nil {
			return nil, common.Hash{}, fmt.Errorf("sandwich %d not optimized", i)
		}
		if len(s.Victim.Raw) == 0 {
			return nil, common.Hash{}, fmt.Errorf("victim %s has no raw transaction", s.Victim.Hash.Hex())
		}

		front, err := e.sign(nonce+uint64(i), opt.FrontGas, opt.FrontCalldata, opt.FrontAccessList, b.BaseFee)
		if err != nil {
			return nil, common.Hash{}, err
		}
		back, err := e.sign(nonce+uint64(n+i), opt.BackGas, opt.BackCalldata, opt.BackAccessList, b.BaseFee)
		if err != nil {
			return nil, common.Hash{}, err
		}
		if i == 0 {
			first = front.Hash()
		}

		frontRaw, err := front.MarshalBinary()
		if err != nil {
			return nil, common.Hash{}, err
		}
		backRaw, err := back.MarshalBinary()
		if err != nil {
			return nil, common.Hash{}, err
		}
		fronts = append(fronts, frontRaw)
		victims = append(victims, s.Victim.Raw)
		backs = append(backs, backRaw)
	}

	txs := make([]hexutil.Bytes, 0, 3*n)
	txs = append(txs, fronts...)
	txs = append(txs, victims...)
	txs = append(txs, backs...)
	return txs, first, nil
}

func (e *Executor) sign(nonce, gas uint64, data []byte, accessList ethtypes.AccessList, baseFee *big.Int) (*ethtypes.Transaction, error) {
	feeCap := new(big.Int).Add(baseFee, e.priorityFee)
	tx, err := ethtypes.SignNewTx(e.key, e.signer, &ethtypes.DynamicFeeTx{
		ChainID:    e.chainID,
		Nonce:      nonce,
		GasTipCap:  new(big.Int).Set(e.priorityFee),
		GasFeeCap:  feeCap,
		Gas:        gas,
		To:         &e.bot,
		Value:      new(big.Int),
		Data:       data,
		AccessList: accessList,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return tx, nil
}

// SignAndSubmit builds the bundle and sends it to every relay concurrently.
// Some relays failing is fine as long as one accepts; the first accepted
// bundle hash is reported.
func (e *Executor) SignAndSubmit(ctx context.Context, b *types.Bundle) (*types.Submission, error) {
	txs, first, err := e.BuildTransactions(ctx, b)
	if err != nil {
		return nil, err
	}

	args := &SendBundleArgs{
		Txs:             txs,
		BlockNumber:     hexutil.Uint64(b.TargetBlock),
		ReplacementUUID: uuid.NewString(),
	}

	if e.dryRun {
		log.Info().
			Uint64("block", b.TargetBlock).
			Int("txs", len(txs)).
			Str("txHash", first.Hex()).
			Msg("Dry run, bundle not sent")
		return &types.Submission{BundleID: "dry-run", TxHash: first}, nil
	}

	var (
		mu       sync.Mutex
		bundleID string
		accepted []string
		g        errgroup.Group
	)
	for _, relay := range e.relays {
		relay := relay
		g.Go(func() error {
			hash, err := relay.SendBundle(ctx, args)
			if err != nil {
				e.metrics.RelayErrors.WithLabelValues(relay.Name()).Inc()
				log.Warn().Err(err).Str("relay", relay.Name()).Uint64("block", b.TargetBlock).Msg("Relay rejected bundle")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if bundleID == "" {
				bundleID = hash
			}
			accepted = append(accepted, relay.Name())
			return nil
		})
	}
	_ = g.Wait()

	if len(accepted) == 0 {
		return nil, ErrNoRelayAccepted
	}
	return &types.Submission{BundleID: bundleID, TxHash: first, Relays: accepted}, nil
}
