package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrReceiptPending means the transaction has not been mined yet.
var ErrReceiptPending = errors.New("receipt pending")

// ReceiptReader fetches transaction receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Backend is the RPC surface needed to submit and confirm transactions.
type Backend interface {
	ReceiptReader
	GetChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Signer holds the key that submits write transactions.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex private key with or without 0x prefix.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signer account.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign signs tx for chainID with the London signer.
func (s *Signer) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.NewLondonSigner(chainID), s.key)
}

// Transactor builds, signs and broadcasts dynamic-fee transactions.
type Transactor struct {
	backend Backend
	signer  *Signer
	// GasMargin is the percentage added on top of the estimate.
	GasMargin uint64
}

// NewTransactor returns a Transactor using signer.
func NewTransactor(backend Backend, signer *Signer) *Transactor {
	return &Transactor{backend: backend, signer: signer, GasMargin: 20}
}

// From returns the sending account.
func (t *Transactor) From() common.Address {
	return t.signer.Address()
}

// Call simulates data against to from the signer account at the pending state.
func (t *Transactor) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return t.backend.CallContract(ctx, ethereum.CallMsg{From: t.signer.Address(), To: &to, Data: data}, nil)
}

// Send submits a single transaction. It is never re-broadcast by this package.
func (t *Transactor) Send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from := t.signer.Address()
	chainID, err := t.backend.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	gas, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas * t.GasMargin / 100

	tip, err := t.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee(head), big.NewInt(2)))

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})
	signed, err := t.signer.Sign(unsigned, chainID)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

// WaitReceipt polls for the receipt of hash with exponential backoff until timeout.
// Only the wait is retried; the transaction is not resubmitted.
func WaitReceipt(ctx context.Context, backend ReceiptReader, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 0

	var receipt *types.Receipt
	operation := func() error {
		r, err := backend.TransactionReceipt(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrReceiptPending) {
				return err
			}
			return backoff.Permanent(err)
		}
		receipt = r
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("wait receipt %s: %w", hash.Hex(), ctx.Err())
		}
		return nil, fmt.Errorf("wait receipt %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

func baseFee(head *types.Header) *big.Int {
	if head == nil || head.BaseFee == nil {
		return big.NewInt(0)
	}
	return head.BaseFee
}
