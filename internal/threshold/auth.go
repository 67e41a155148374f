package threshold

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"graduationScope/internal/graduation"
)

// Authorizer decides whether a caller may change threshold configuration.
type Authorizer interface {
	Authorize(ctx context.Context, caller string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, caller string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, caller string) error {
	return f(ctx, caller)
}

// AdminSet authorizes a fixed set of admin addresses.
type AdminSet struct {
	admins map[common.Address]struct{}
}

// NewAdminSet parses admin addresses.
func NewAdminSet(addresses []string) (*AdminSet, error) {
	set := &AdminSet{admins: make(map[common.Address]struct{}, len(addresses))}
	for _, raw := range addresses {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid admin address: %s", raw)
		}
		set.admins[common.HexToAddress(raw)] = struct{}{}
	}
	return set, nil
}

// Authorize returns graduation.ErrUnauthorized unless caller is a configured admin.
func (s *AdminSet) Authorize(_ context.Context, caller string) error {
	caller = strings.TrimSpace(caller)
	if caller == "" || !common.IsHexAddress(caller) {
		return graduation.Unauthorized(caller)
	}
	if _, ok := s.admins[common.HexToAddress(caller)]; !ok {
		return graduation.Unauthorized(caller)
	}
	return nil
}

// Len returns the number of admins.
func (s *AdminSet) Len() int {
	return len(s.admins)
}
