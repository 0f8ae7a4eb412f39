package execution

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SendBundleArgs is the eth_sendBundle parameter object
type SendBundleArgs struct {
	Txs             []hexutil.Bytes `json:"txs"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	ReplacementUUID string          `json:"replacementUuid,omitempty"`
}

// Relay accepts bundles over its submission protocol
type Relay interface {
	Name() string
	SendBundle(ctx context.Context, args *SendBundleArgs) (string, error)
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// BuilderRelay posts unsigned eth_sendBundle requests
type BuilderRelay struct {
	name       string
	url        string
	httpClient *http.Client
}

// NewBuilderRelay creates a relay that needs no request signature
func NewBuilderRelay(name, url string) *BuilderRelay {
	return &BuilderRelay{
		name:       name,
		url:        url,
		httpClient: &http.Client{Timeout: 12 * time.Second},
	}
}

func (r *BuilderRelay) Name() string { return r.name }

func (r *BuilderRelay) SendBundle(ctx context.Context, args *SendBundleArgs) (string, error) {
	return postBundle(ctx, r.httpClient, r.url, args, nil)
}

// FlashbotsRelay signs each request body with the searcher identity key
type FlashbotsRelay struct {
	name       string
	url        string
	identity   *ecdsa.PrivateKey
	address    common.Address
	httpClient *http.Client
}

// NewFlashbotsRelay creates a relay expecting the X-Flashbots-Signature header
func NewFlashbotsRelay(name, url string, identity *ecdsa.PrivateKey) *FlashbotsRelay {
	return &FlashbotsRelay{
		name:       name,
		url:        url,
		identity:   identity,
		address:    crypto.PubkeyToAddress(identity.PublicKey),
		httpClient: &http.Client{Timeout: 12 * time.Second},
	}
}

func (r *FlashbotsRelay) Name() string { return r.name }

func (r *FlashbotsRelay) SendBundle(ctx context.Context, args *SendBundleArgs) (string, error) {
	return postBundle(ctx, r.httpClient, r.url, args, r.sign)
}

// sign produces address:signature over the EIP-191 hash of hex(keccak(body))
func (r *FlashbotsRelay) sign(body []byte) (string, error) {
	digest := hexutil.Encode(crypto.Keccak256(body))
	sig, err := crypto.Sign(accounts.TextHash([]byte(digest)), r.identity)
	if err != nil {
		return "", err
	}
	return r.address.Hex() + ":" + hexutil.Encode(sig), nil
}

func postBundle(ctx context.Context, client *http.Client, url string, args *SendBundleArgs, sign func([]byte) (string, error)) (string, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_sendBundle",
		Params:  []interface{}{args},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sign != nil {
		sig, err := sign(body)
		if err != nil {
			return "", fmt.Errorf("failed to sign request: %w", err)
		}
		req.Header.Set("X-Flashbots-Signature", sig)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	return bundleHash(out.Result), nil
}

// bundleHash reads {"bundleHash": "0x.."} or a bare string result; builders differ
func bundleHash(result json.RawMessage) string {
	var obj struct {
		BundleHash string `json:"bundleHash"`
	}
	if err := json.Unmarshal(result, &obj); err == nil && obj.BundleHash != "" {
		return obj.BundleHash
	}
	var s string
	if err := json.Unmarshal(result, &s); err == nil {
		return s
	}
	return ""
}

// NewRelays builds the configured relay set in name order. Names listed in
// signedRelays get Flashbots request signing.
func NewRelays(relays map[string]string, signedRelays []string, identity *ecdsa.PrivateKey) []Relay {
	signed := mapset.NewThreadUnsafeSet[string](signedRelays...)

	names := make([]string, 0, len(relays))
	for name := range relays {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Relay, 0, len(names))
	for _, name := range names {
		if signed.Contains(name) {
			out = append(out, NewFlashbotsRelay(name, relays[name], identity))
		} else {
			out = append(out, NewBuilderRelay(name, relays[name]))
		}
	}
	return out
}
