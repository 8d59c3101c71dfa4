package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"github.com/hyperledger/firefly-signer/pkg/secp256k1"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/TemirB/musicnft/internal/config"
	"github.com/TemirB/musicnft/internal/domain"
)

var ErrReverted = errors.New("transaction reverted")

// RPC is the subset of rpcbackend used here.
type RPC interface {
	CallRPC(ctx context.Context, result interface{}, method string, params ...interface{}) *rpcbackend.RPCError
}

type Log struct {
	Address *ethtypes.Address0xHex      `json:"address"`
	Topics  []ethtypes.HexBytes0xPrefix `json:"topics"`
	Data    ethtypes.HexBytes0xPrefix   `json:"data"`
}

type Receipt struct {
	TransactionHash ethtypes.HexBytes0xPrefix `json:"transactionHash"`
	BlockNumber     *ethtypes.HexInteger      `json:"blockNumber"`
	Status          *ethtypes.HexInteger      `json:"status"`
	Logs            []*Log                    `json:"logs"`
}

func (r *Receipt) Succeeded() bool {
	return r.Status != nil && r.Status.BigInt().Sign() > 0
}

// Client is a minimal transaction client. Without a private key it relies on
// the node to sign for the configured account (eth_sendTransaction).
type Client struct {
	rpc     RPC
	from    *ethtypes.Address0xHex
	key     *secp256k1.KeyPair
	chainID int64
	poll    time.Duration
	logger  *zap.Logger
}

func Dial(cfg config.Chain, logger *zap.Logger) (*Client, error) {
	rc := resty.New().
		SetBaseURL(cfg.RPCURL).
		SetTimeout(30 * time.Second)
	return NewClient(rpcbackend.NewRPCClient(rc), cfg, logger)
}

func NewClient(rpc RPC, cfg config.Chain, logger *zap.Logger) (*Client, error) {
	c := &Client{
		rpc:     rpc,
		chainID: cfg.ChainID,
		poll:    cfg.ReceiptPoll,
		logger:  logger,
	}
	if c.poll <= 0 {
		c.poll = time.Second
	}

	if cfg.PrivateKey != "" {
		b, err := hex.DecodeString(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: PRIVATE_KEY is not hex", domain.ErrValidation)
		}
		kp, err := secp256k1.NewSecp256k1KeyPair(b)
		if err != nil {
			return nil, fmt.Errorf("%w: PRIVATE_KEY: %v", domain.ErrValidation, err)
		}
		c.key = kp
		addr := kp.Address
		c.from = &addr
		return c, nil
	}

	from, err := ethtypes.NewAddress(cfg.Account)
	if err != nil {
		return nil, fmt.Errorf("%w: ACCOUNT: %v", domain.ErrValidation, err)
	}
	c.from = from
	return c, nil
}

// Account returns the sender address in lower-case 0x form.
func (c *Client) Account() string { return c.from.String() }

func (c *Client) fromJSON() json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`"%s"`, c.from.String()))
}

func encodeCall(ctx context.Context, fn *abi.Entry, params map[string]any) (ethtypes.HexBytes0xPrefix, error) {
	if params == nil {
		params = map[string]any{}
	}
	in, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	data, err := fn.EncodeCallDataJSONCtx(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", domain.ErrValidation, fn.Name, err)
	}
	return data, nil
}

// Call runs a read-only call against the latest block and decodes the outputs
// into out through their JSON form.
func (c *Client) Call(ctx context.Context, to *ethtypes.Address0xHex, fn *abi.Entry, params map[string]any, out any) error {
	data, err := encodeCall(ctx, fn, params)
	if err != nil {
		return err
	}
	tx := &ethsigner.Transaction{From: c.fromJSON(), To: to, Data: data}

	var res ethtypes.HexBytes0xPrefix
	if rpcErr := c.rpc.CallRPC(ctx, &res, "eth_call", tx, "latest"); rpcErr != nil {
		return fmt.Errorf("%w: eth_call %s: %v", domain.ErrUpstream, fn.Name, rpcErr.Error())
	}
	if len(res) == 0 && len(fn.Outputs) > 0 {
		return fmt.Errorf("%w: eth_call %s: empty result", domain.ErrUpstream, fn.Name)
	}

	cv, err := fn.Outputs.DecodeABIDataCtx(ctx, res, 0)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", domain.ErrUpstream, fn.Name, err)
	}
	j, err := serializer().SerializeJSONCtx(ctx, cv)
	if err != nil {
		return err
	}
	return json.Unmarshal(j, out)
}

// Transact submits a state-changing call and blocks until it is mined.
func (c *Client) Transact(ctx context.Context, to *ethtypes.Address0xHex, fn *abi.Entry, params map[string]any) (*Receipt, error) {
	data, err := encodeCall(ctx, fn, params)
	if err != nil {
		return nil, err
	}
	tx := &ethsigner.Transaction{From: c.fromJSON(), To: to, Data: data}

	hash, err := c.send(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrUpstream, fn.Name, err)
	}
	c.logger.Info("transaction submitted", zap.String("fn", fn.Name), zap.String("tx", hash.String()))

	receipt, err := c.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	return receipt, nil
}

func (c *Client) send(ctx context.Context, tx *ethsigner.Transaction) (ethtypes.HexBytes0xPrefix, error) {
	var hash ethtypes.HexBytes0xPrefix
	if c.key == nil {
		if rpcErr := c.rpc.CallRPC(ctx, &hash, "eth_sendTransaction", tx); rpcErr != nil {
			return nil, rpcErr.Error()
		}
		return hash, nil
	}

	raw, err := c.sign(ctx, tx)
	if err != nil {
		return nil, err
	}
	if rpcErr := c.rpc.CallRPC(ctx, &hash, "eth_sendRawTransaction", raw); rpcErr != nil {
		return nil, rpcErr.Error()
	}
	return hash, nil
}

// sign fills nonce, gas price and gas limit from the node and produces a
// legacy EIP-155 raw transaction.
func (c *Client) sign(ctx context.Context, tx *ethsigner.Transaction) (ethtypes.HexBytes0xPrefix, error) {
	if tx.Nonce == nil {
		if rpcErr := c.rpc.CallRPC(ctx, &tx.Nonce, "eth_getTransactionCount", c.from.String(), "pending"); rpcErr != nil {
			return nil, fmt.Errorf("eth_getTransactionCount: %w", rpcErr.Error())
		}
	}
	if tx.GasPrice == nil {
		if rpcErr := c.rpc.CallRPC(ctx, &tx.GasPrice, "eth_gasPrice"); rpcErr != nil {
			return nil, fmt.Errorf("eth_gasPrice: %w", rpcErr.Error())
		}
	}
	if tx.GasLimit == nil {
		var estimate ethtypes.HexInteger
		if rpcErr := c.rpc.CallRPC(ctx, &estimate, "eth_estimateGas", tx); rpcErr != nil {
			return nil, fmt.Errorf("eth_estimateGas: %w", rpcErr.Error())
		}
		// 20% headroom over the estimate
		limit := new(big.Int).Mul(estimate.BigInt(), big.NewInt(12))
		tx.GasLimit = ethtypes.NewHexInteger(limit.Div(limit, big.NewInt(10)))
	}

	payload := tx.SignaturePayloadLegacyEIP155(c.chainID)
	hash := sha3.NewLegacyKeccak256()
	_, _ = hash.Write(payload.Bytes())
	sig, err := c.key.SignDirect(hash.Sum(nil))
	if err != nil {
		return nil, err
	}
	raw, err := tx.FinalizeLegacyEIP155WithSignature(payload, sig, c.chainID)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
// A mined transaction with status 0 returns ErrReverted.
func (c *Client) WaitForReceipt(ctx context.Context, hash ethtypes.HexBytes0xPrefix) (*Receipt, error) {
	t := time.NewTicker(c.poll)
	defer t.Stop()
	for {
		var receipt *Receipt
		if rpcErr := c.rpc.CallRPC(ctx, &receipt, "eth_getTransactionReceipt", hash); rpcErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: eth_getTransactionReceipt: %v", domain.ErrUpstream, rpcErr.Error())
		}
		if receipt != nil {
			if !receipt.Succeeded() {
				return receipt, fmt.Errorf("%w: %s", ErrReverted, hash.String())
			}
			c.logger.Info("transaction mined", zap.String("tx", hash.String()))
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
