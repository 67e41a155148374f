package ledger

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"graduationScope/internal/model"
)

// PairFactory is an in-memory DEX factory. Pair addresses follow the CREATE2 layout
// keccak(0xff ++ factory ++ keccak(token0 ++ token1) ++ initCodeHash).
type PairFactory struct {
	factory  common.Address
	quote    common.Address
	initCode common.Hash

	mu    sync.Mutex
	pairs map[common.Address]model.LiquidityPair
	now   func() time.Time
}

// NewPairFactory returns a factory pairing every token with quote.
func NewPairFactory(factory, quote common.Address) *PairFactory {
	return &PairFactory{
		factory:  factory,
		quote:    quote,
		initCode: crypto.Keccak256Hash([]byte("graduation-pair")),
		pairs:    make(map[common.Address]model.LiquidityPair),
		now:      time.Now,
	}
}

// CreatePair creates the token/quote pair. A token gets at most one pair.
func (f *PairFactory) CreatePair(ctx context.Context, token common.Address, reserves model.Reserves) (model.LiquidityPair, error) {
	if err := ctx.Err(); err != nil {
		return model.LiquidityPair{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.pairs[token]; ok {
		return model.LiquidityPair{}, fmt.Errorf("pair %s already exists for %s", existing.Address.Hex(), token.Hex())
	}

	token0, token1 := sortPair(token, f.quote)
	salt := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	addr := common.BytesToAddress(crypto.Keccak256([]byte{0xff}, f.factory.Bytes(), salt, f.initCode.Bytes())[12:])

	pair := model.LiquidityPair{
		Address:   addr,
		Token0:    token0,
		Token1:    token1,
		Reserves:  reserves.Clone(),
		CreatedAt: f.now().UTC(),
	}
	f.pairs[token] = pair
	return pair, nil
}

// Pair returns the pair created for token.
func (f *PairFactory) Pair(token common.Address) (model.LiquidityPair, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pair, ok := f.pairs[token]
	return pair, ok
}

// Count is the number of pairs created.
func (f *PairFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pairs)
}

func sortPair(a, b common.Address) (common.Address, common.Address) {
	if bytes.Compare(a.Bytes(), b.Bytes()) < 0 {
		return a, b
	}
	return b, a
}
