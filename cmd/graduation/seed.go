package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/ledger"
	"graduationScope/internal/model"
)

// seedToken is one line of a seed file. Amounts are decimal wei strings.
type seedToken struct {
	Address     string     `json:"address"`
	Creator     string     `json:"creator"`
	Name        string     `json:"name"`
	Symbol      string     `json:"symbol"`
	TotalSupply string     `json:"totalSupply"`
	Stats       *seedStats `json:"stats,omitempty"`
}

type seedStats struct {
	CurrentPrice  string `json:"currentPrice"`
	MarketCap     string `json:"marketCap"`
	Volume24h     string `json:"volume24h"`
	HolderCount   uint64 `json:"holderCount"`
	ReserveNative string `json:"reserveNative"`
	ReserveToken  string `json:"reserveToken"`
}

func loadSeed(ctx context.Context, l *ledger.Ledger, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed: %w", err)
	}
	defer file.Close()
	return readSeed(ctx, l, file)
}

func readSeed(ctx context.Context, l *ledger.Ledger, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var entry seedToken
		if err := json.Unmarshal(raw, &entry); err != nil {
			return count, fmt.Errorf("seed line %d: %w", line, err)
		}
		if err := applySeed(ctx, l, entry); err != nil {
			return count, fmt.Errorf("seed line %d: %w", line, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("read seed: %w", err)
	}
	return count, nil
}

func applySeed(ctx context.Context, l *ledger.Ledger, entry seedToken) error {
	if entry.Address != "" && !common.IsHexAddress(entry.Address) {
		return fmt.Errorf("invalid token address %q", entry.Address)
	}
	if entry.Creator != "" && !common.IsHexAddress(entry.Creator) {
		return fmt.Errorf("invalid creator address %q", entry.Creator)
	}
	supply, err := parseWei("totalSupply", entry.TotalSupply)
	if err != nil {
		return err
	}
	tok, err := l.CreateToken(ctx, ledger.NewToken{
		Address:     common.HexToAddress(entry.Address),
		Creator:     common.HexToAddress(entry.Creator),
		Name:        entry.Name,
		Symbol:      entry.Symbol,
		TotalSupply: supply,
	})
	if err != nil {
		return err
	}
	if entry.Stats == nil {
		return nil
	}

	stats := model.TokenStats{HolderCount: entry.Stats.HolderCount}
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"currentPrice", entry.Stats.CurrentPrice, &stats.CurrentPrice},
		{"marketCap", entry.Stats.MarketCap, &stats.MarketCap},
		{"volume24h", entry.Stats.Volume24h, &stats.Volume24h},
		{"reserveNative", entry.Stats.ReserveNative, &stats.Reserves.Native},
		{"reserveToken", entry.Stats.ReserveToken, &stats.Reserves.Token},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		value, err := parseWei(f.name, f.raw)
		if err != nil {
			return err
		}
		*f.dst = value
	}
	return l.SetStats(ctx, tok.Address, stats)
}

// parseWei parses a non-negative decimal integer. Empty means nil.
func parseWei(name, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid %s %q", name, raw)
	}
	return value, nil
}
