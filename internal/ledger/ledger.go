// Package ledger is an in-process token ledger. Every mutation of a token runs under that
// token's lock, so graduation and trades on the same token are serialized.
package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

// VolumeWindow is the rolling window of Volume24h.
const VolumeWindow = 24 * time.Hour

// Side is the direction of a bonding-curve trade.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// NewToken describes a token launch.
type NewToken struct {
	Address     common.Address
	Creator     common.Address
	Name        string
	Symbol      string
	TotalSupply *big.Int
}

// Trade is a bonding-curve trade. Amounts are in wei of each side.
type Trade struct {
	Token        common.Address
	Trader       common.Address
	Side         Side
	NativeAmount *big.Int
	TokenAmount  *big.Int
}

type fill struct {
	at     time.Time
	native *big.Int
}

type entry struct {
	mu sync.Mutex

	token    model.Token
	reserves model.Reserves
	balances map[common.Address]*big.Int
	fills    []fill

	// Seeded values add to what trades produce.
	seedVolume    *big.Int
	seedHolders   uint64
	seedPrice     *big.Int
	seedMarketCap *big.Int
}

// Ledger holds token registry and trading state in memory.
type Ledger struct {
	mu     sync.RWMutex
	tokens map[common.Address]*entry
	order  []common.Address

	nonce  atomic.Uint64
	logger *zap.Logger
	now    func() time.Time
}

// New returns an empty ledger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		tokens: make(map[common.Address]*entry),
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the ledger clock.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// CreateToken registers a token with its full supply in the bonding-curve reserve.
func (l *Ledger) CreateToken(ctx context.Context, params NewToken) (model.Token, error) {
	if params.TotalSupply == nil || params.TotalSupply.Sign() <= 0 {
		return model.Token{}, errors.New("total supply must be positive")
	}
	addr := params.Address
	if addr == (common.Address{}) {
		addr = crypto.CreateAddress(params.Creator, l.nonce.Add(1))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.tokens[addr]; ok {
		return model.Token{}, fmt.Errorf("token %s already registered", addr.Hex())
	}

	tok := model.Token{
		Address:     addr,
		Creator:     params.Creator,
		Name:        params.Name,
		Symbol:      params.Symbol,
		TotalSupply: new(big.Int).Set(params.TotalSupply),
		CreatedAt:   l.now().UTC(),
		Active:      true,
		TotalVolume: big.NewInt(0),
		Status:      model.NotGraduated,
	}
	l.tokens[addr] = &entry{
		token: tok,
		reserves: model.Reserves{
			Native: big.NewInt(0),
			Token:  new(big.Int).Set(params.TotalSupply),
		},
		balances:   make(map[common.Address]*big.Int),
		seedVolume: big.NewInt(0),
	}
	l.order = append(l.order, addr)

	l.logger.Debug("token created", zap.String("token", addr.Hex()), zap.String("symbol", params.Symbol))
	return tok.Clone(), nil
}

// GetAllTokens returns every registered token in creation order.
func (l *Ledger) GetAllTokens(ctx context.Context) ([]common.Address, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]common.Address, len(l.order))
	copy(out, l.order)
	return out, nil
}

// IsRegisteredToken reports whether token was created on this ledger.
func (l *Ledger) IsRegisteredToken(ctx context.Context, token common.Address) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.tokens[token]
	return ok, nil
}

// GetTokenInfo returns a copy of the registry record.
func (l *Ledger) GetTokenInfo(ctx context.Context, token common.Address) (model.Token, error) {
	e, err := l.lookup(token)
	if err != nil {
		return model.Token{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token.Clone(), nil
}

// GetTokenStats returns the trading engine view of token.
func (l *Ledger) GetTokenStats(ctx context.Context, token common.Address) (model.TokenStats, error) {
	e, err := l.lookup(token)
	if err != nil {
		return model.TokenStats{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats(l.now()), nil
}

// SetStats seeds volume, holders, price and reserves without replaying trades.
// Nil amounts leave the current value; HolderCount always replaces the seeded holders.
func (l *Ledger) SetStats(ctx context.Context, token common.Address, stats model.TokenStats) error {
	e, err := l.lookup(token)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.token.IsGraduated() {
		return graduation.AlreadyGraduated(token.Hex())
	}

	if stats.Volume24h != nil {
		e.seedVolume = new(big.Int).Set(stats.Volume24h)
		e.fills = nil
	}
	e.seedHolders = stats.HolderCount
	if stats.CurrentPrice != nil {
		e.seedPrice = new(big.Int).Set(stats.CurrentPrice)
	}
	if stats.MarketCap != nil {
		e.seedMarketCap = new(big.Int).Set(stats.MarketCap)
	}
	if stats.Reserves.Native != nil || stats.Reserves.Token != nil {
		e.reserves = stats.Reserves.Clone()
		if e.reserves.Native == nil {
			e.reserves.Native = big.NewInt(0)
		}
		if e.reserves.Token == nil {
			e.reserves.Token = big.NewInt(0)
		}
	}
	return nil
}

// RecordTrade applies a bonding-curve trade under the token lock.
func (l *Ledger) RecordTrade(ctx context.Context, trade Trade) error {
	if trade.NativeAmount == nil || trade.NativeAmount.Sign() <= 0 || trade.TokenAmount == nil || trade.TokenAmount.Sign() <= 0 {
		return errors.New("trade amounts must be positive")
	}
	e, err := l.lookup(trade.Token)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token.IsGraduated() {
		return graduation.AlreadyGraduated(trade.Token.Hex())
	}
	if !e.token.Active {
		return fmt.Errorf("token %s is inactive", trade.Token.Hex())
	}

	balance := e.balances[trade.Trader]
	if balance == nil {
		balance = big.NewInt(0)
	}
	switch trade.Side {
	case Buy:
		if e.reserves.Token.Cmp(trade.TokenAmount) < 0 {
			return fmt.Errorf("insufficient token reserve: have %s, want %s", e.reserves.Token, trade.TokenAmount)
		}
		e.reserves.Native = new(big.Int).Add(e.reserves.Native, trade.NativeAmount)
		e.reserves.Token = new(big.Int).Sub(e.reserves.Token, trade.TokenAmount)
		balance = new(big.Int).Add(balance, trade.TokenAmount)
	case Sell:
		if balance.Cmp(trade.TokenAmount) < 0 {
			return fmt.Errorf("insufficient balance: have %s, want %s", balance, trade.TokenAmount)
		}
		if e.reserves.Native.Cmp(trade.NativeAmount) < 0 {
			return fmt.Errorf("insufficient native reserve: have %s, want %s", e.reserves.Native, trade.NativeAmount)
		}
		e.reserves.Native = new(big.Int).Sub(e.reserves.Native, trade.NativeAmount)
		e.reserves.Token = new(big.Int).Add(e.reserves.Token, trade.TokenAmount)
		balance = new(big.Int).Sub(balance, trade.TokenAmount)
	default:
		return fmt.Errorf("unknown trade side %d", trade.Side)
	}

	if balance.Sign() == 0 {
		delete(e.balances, trade.Trader)
	} else {
		e.balances[trade.Trader] = balance
	}
	now := l.now()
	e.fills = append(pruneFills(e.fills, now), fill{at: now, native: new(big.Int).Set(trade.NativeAmount)})
	e.token.TotalVolume = new(big.Int).Add(e.token.TotalVolume, trade.NativeAmount)
	e.seedPrice = nil
	e.seedMarketCap = nil
	return nil
}

// Deactivate soft-deletes a token. Tokens are never removed.
func (l *Ledger) Deactivate(ctx context.Context, token common.Address) error {
	e, err := l.lookup(token)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token.Active = false
	return nil
}

// Atomic runs fn with exclusive access to token. Staged changes commit only when fn returns nil.
func (l *Ledger) Atomic(ctx context.Context, token common.Address, fn func(tx graduation.Tx) error) error {
	e, err := l.lookup(token)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return graduation.ExecutionFailed("ledger unit", err)
	}

	tx := &ledgerTx{
		ledger: l,
		token:  e.token.Clone(),
		stats:  e.stats(l.now()),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.pair != nil {
		e.commitGraduation(*tx.pair)
		l.logger.Debug("graduation committed", zap.String("token", token.Hex()), zap.String("pair", tx.pair.Address.Hex()))
	}
	return nil
}

func (l *Ledger) lookup(token common.Address) (*entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.tokens[token]
	if !ok {
		return nil, graduation.TokenNotFound(token.Hex())
	}
	return e, nil
}

func (l *Ledger) txHash(token, pair common.Address) common.Hash {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], l.nonce.Add(1))
	return crypto.Keccak256Hash(token.Bytes(), pair.Bytes(), n[:])
}

func (e *entry) stats(now time.Time) model.TokenStats {
	volume := new(big.Int).Set(e.seedVolume)
	cutoff := now.Add(-VolumeWindow)
	for _, f := range e.fills {
		if f.at.After(cutoff) {
			volume.Add(volume, f.native)
		}
	}

	holders := e.seedHolders + uint64(len(e.balances))

	price := e.seedPrice
	if price == nil {
		price = spotPrice(e.reserves)
	}
	var marketCap *big.Int
	if e.seedMarketCap != nil {
		marketCap = new(big.Int).Set(e.seedMarketCap)
	} else if price != nil && e.token.TotalSupply != nil {
		marketCap = new(big.Int).Mul(price, e.token.TotalSupply)
		marketCap.Quo(marketCap, model.WeiPerEther())
	}

	return model.TokenStats{
		CurrentPrice: cloneOrZero(price),
		MarketCap:    cloneOrZero(marketCap),
		Volume24h:    volume,
		HolderCount:  holders,
		Reserves:     e.reserves.Clone(),
	}
}

func (e *entry) commitGraduation(pair model.LiquidityPair) {
	addr := pair.Address
	e.token.Status = model.Graduated
	e.token.LiquidityPair = &addr
	e.reserves = model.Reserves{Native: big.NewInt(0), Token: big.NewInt(0)}
}

// spotPrice is native per whole token at the current reserves.
func spotPrice(r model.Reserves) *big.Int {
	if r.Native == nil || r.Token == nil || r.Token.Sign() == 0 {
		return nil
	}
	price := new(big.Int).Mul(r.Native, model.WeiPerEther())
	return price.Quo(price, r.Token)
}

func pruneFills(fills []fill, now time.Time) []fill {
	cutoff := now.Add(-VolumeWindow)
	idx := sort.Search(len(fills), func(i int) bool { return fills[i].at.After(cutoff) })
	return fills[idx:]
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

type ledgerTx struct {
	ledger *Ledger
	token  model.Token
	stats  model.TokenStats
	pair   *model.LiquidityPair
}

func (t *ledgerTx) Token() model.Token {
	return t.token.Clone()
}

func (t *ledgerTx) Stats() model.TokenStats {
	return t.stats.Clone()
}

func (t *ledgerTx) MarkGraduated(pair model.LiquidityPair) common.Hash {
	t.pair = &pair
	return t.ledger.txHash(t.token.Address, pair.Address)
}
