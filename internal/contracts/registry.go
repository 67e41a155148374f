package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/graduation"
	"graduationScope/internal/model"
)

// Registry reads the token factory and trading engine contracts.
type Registry struct {
	caller  Caller
	factory common.Address
	engine  common.Address
}

// NewRegistry binds the factory and engine deployments.
func NewRegistry(caller Caller, factory, engine common.Address) *Registry {
	return &Registry{caller: caller, factory: factory, engine: engine}
}

// GetAllTokens returns every token the factory launched.
func (r *Registry) GetAllTokens(ctx context.Context) ([]common.Address, error) {
	parsed, err := TokenFactoryABI()
	if err != nil {
		return nil, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, r.factory, parsed, "getAllTokens")
	if err != nil {
		return nil, err
	}
	tokens, ok := values[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getAllTokens: unsupported type %T", values[0])
	}
	return tokens, nil
}

// IsRegisteredToken reports whether the factory knows token.
func (r *Registry) IsRegisteredToken(ctx context.Context, token common.Address) (bool, error) {
	parsed, err := TokenFactoryABI()
	if err != nil {
		return false, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, r.factory, parsed, "isRegisteredToken", token)
	if err != nil {
		return false, err
	}
	ok, isBool := values[0].(bool)
	if !isBool {
		return false, fmt.Errorf("isRegisteredToken: unsupported type %T", values[0])
	}
	return ok, nil
}

// GetTokenInfo returns the registry record. Unknown tokens map to TokenNotFound.
func (r *Registry) GetTokenInfo(ctx context.Context, token common.Address) (model.Token, error) {
	parsed, err := TokenFactoryABI()
	if err != nil {
		return model.Token{}, fmt.Errorf("parse factory abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, r.factory, parsed, "getTokenInfo", token)
	if err != nil {
		if isNotRegistered(err) {
			return model.Token{}, graduation.TokenNotFound(token.Hex())
		}
		return model.Token{}, err
	}

	creator, err := asAddress(values[0])
	if err != nil {
		return model.Token{}, fmt.Errorf("creator: %w", err)
	}
	name, _ := values[1].(string)
	symbol, _ := values[2].(string)
	supply, err := asBigInt(values[3])
	if err != nil {
		return model.Token{}, fmt.Errorf("total supply: %w", err)
	}
	createdAt, err := asUint64(values[4])
	if err != nil {
		return model.Token{}, fmt.Errorf("created at: %w", err)
	}
	active, _ := values[5].(bool)
	volume, err := asBigInt(values[6])
	if err != nil {
		return model.Token{}, fmt.Errorf("total volume: %w", err)
	}
	graduated, _ := values[7].(bool)
	pair, err := asAddress(values[8])
	if err != nil {
		return model.Token{}, fmt.Errorf("liquidity pair: %w", err)
	}

	if creator == (common.Address{}) && supply.Sign() == 0 {
		return model.Token{}, graduation.TokenNotFound(token.Hex())
	}

	tok := model.Token{
		Address:     token,
		Creator:     creator,
		Name:        name,
		Symbol:      symbol,
		TotalSupply: supply,
		CreatedAt:   time.Unix(int64(createdAt), 0).UTC(),
		Active:      active,
		TotalVolume: volume,
		Status:      model.NotGraduated,
	}
	if graduated {
		tok.Status = model.Graduated
	}
	if pair != (common.Address{}) {
		tok.LiquidityPair = &pair
	}
	return tok, nil
}

// GetTokenStats reads the trading engine view of token.
func (r *Registry) GetTokenStats(ctx context.Context, token common.Address) (model.TokenStats, error) {
	parsed, err := TradingEngineABI()
	if err != nil {
		return model.TokenStats{}, fmt.Errorf("parse engine abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, r.engine, parsed, "getTokenStats", token)
	if err != nil {
		return model.TokenStats{}, err
	}

	ints := make([]*big.Int, 0, len(values))
	for i, v := range values {
		n, err := asBigInt(v)
		if err != nil {
			return model.TokenStats{}, fmt.Errorf("getTokenStats output %d: %w", i, err)
		}
		ints = append(ints, n)
	}
	holders := ints[3]
	if !holders.IsUint64() {
		return model.TokenStats{}, fmt.Errorf("holder count overflow: %s", holders)
	}
	return model.TokenStats{
		CurrentPrice: ints[0],
		MarketCap:    ints[1],
		Volume24h:    ints[2],
		HolderCount:  holders.Uint64(),
		Reserves:     model.Reserves{Native: ints[4], Token: ints[5]},
	}, nil
}

func isNotRegistered(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not registered") || strings.Contains(msg, "token not found")
}
