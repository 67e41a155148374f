package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const tokenFactoryABIJSON = `[
  {
    "inputs": [],
    "name": "getAllTokens",
    "outputs": [{"internalType": "address[]", "name": "", "type": "address[]"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "token", "type": "address"}],
    "name": "isRegisteredToken",
    "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [{"internalType": "address", "name": "token", "type": "address"}],
    "name": "getTokenInfo",
    "outputs": [
      {"internalType": "address", "name": "creator", "type": "address"},
      {"internalType": "string", "name": "name", "type": "string"},
      {"internalType": "string", "name": "symbol", "type": "string"},
      {"internalType": "uint256", "name": "totalSupply", "type": "uint256"},
      {"internalType": "uint256", "name": "createdAt", "type": "uint256"},
      {"internalType": "bool", "name": "isActive", "type": "bool"},
      {"internalType": "uint256", "name": "totalVolume", "type": "uint256"},
      {"internalType": "bool", "name": "isGraduated", "type": "bool"},
      {"internalType": "address", "name": "liquidityPair", "type": "address"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const tradingEngineABIJSON = `[
  {
    "inputs": [{"internalType": "address", "name": "token", "type": "address"}],
    "name": "getTokenStats",
    "outputs": [
      {"internalType": "uint256", "name": "currentPrice", "type": "uint256"},
      {"internalType": "uint256", "name": "marketCap", "type": "uint256"},
      {"internalType": "uint256", "name": "volume24h", "type": "uint256"},
      {"internalType": "uint256", "name": "holderCount", "type": "uint256"},
      {"internalType": "uint256", "name": "nativeReserve", "type": "uint256"},
      {"internalType": "uint256", "name": "tokenReserve", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const tokenGraduationABIJSON = `[
  {
    "inputs": [
      {"internalType": "address", "name": "token", "type": "address"},
      {"internalType": "uint256", "name": "minMarketCap", "type": "uint256"},
      {"internalType": "uint256", "name": "minVolume", "type": "uint256"},
      {"internalType": "uint256", "name": "minHolders", "type": "uint256"}
    ],
    "name": "graduateToken",
    "outputs": [{"internalType": "address", "name": "pair", "type": "address"}],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "pair", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "nativeReserve", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "tokenReserve", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "timestamp", "type": "uint256"}
    ],
    "name": "TokenGraduated",
    "type": "event"
  }
]`

const aggregatorABIJSON = `[
  {"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"},
  {
    "inputs": [],
    "name": "latestRoundData",
    "outputs": [
      {"internalType": "uint80", "name": "roundId", "type": "uint80"},
      {"internalType": "int256", "name": "answer", "type": "int256"},
      {"internalType": "uint256", "name": "startedAt", "type": "uint256"},
      {"internalType": "uint256", "name": "updatedAt", "type": "uint256"},
      {"internalType": "uint80", "name": "answeredInRound", "type": "uint80"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

type lazyABI struct {
	json   string
	once   sync.Once
	parsed abi.ABI
	err    error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.parsed, l.err = abi.JSON(strings.NewReader(l.json))
	})
	return l.parsed, l.err
}

var (
	tokenFactoryABI    = &lazyABI{json: tokenFactoryABIJSON}
	tradingEngineABI   = &lazyABI{json: tradingEngineABIJSON}
	tokenGraduationABI = &lazyABI{json: tokenGraduationABIJSON}
	aggregatorABI      = &lazyABI{json: aggregatorABIJSON}
)

// TokenFactoryABI returns the parsed registry ABI.
func TokenFactoryABI() (abi.ABI, error) {
	return tokenFactoryABI.get()
}

// TradingEngineABI returns the parsed trading engine ABI.
func TradingEngineABI() (abi.ABI, error) {
	return tradingEngineABI.get()
}

// TokenGraduationABI returns the parsed graduation contract ABI.
func TokenGraduationABI() (abi.ABI, error) {
	return tokenGraduationABI.get()
}

// AggregatorABI returns the parsed price aggregator ABI.
func AggregatorABI() (abi.ABI, error) {
	return aggregatorABI.get()
}
