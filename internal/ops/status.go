package ops

import (
	"context"

	"github.com/hpungsan/casefile/internal/resolver"
)

// Status resolves the filing state of an email.
func (s *Service) Status(ctx context.Context, item resolver.CurrentItemContext) (*resolver.Resolution, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}
	res := s.resolver.Resolve(ctx, item)
	return &res, nil
}
