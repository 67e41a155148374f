package sampler

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SplitBatches splits tokens into consecutive batches of at most batchSize.
func SplitBatches(tokens []common.Address, batchSize int) ([][]common.Address, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}

	batches := make([][]common.Address, 0, (len(tokens)+batchSize-1)/batchSize)
	for start := 0; start < len(tokens); start += batchSize {
		end := start + batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches, nil
}
