package ops

import (
	"context"

	"github.com/hpungsan/casefile/internal/labels"
	"github.com/hpungsan/casefile/internal/resolver"
)

// UnfileOutput contains the result of the Unfile operation.
type UnfileOutput struct {
	ItemKey string        `json:"itemKey"`
	Labels  labels.Toggle `json:"labels"`
}

// Unfile reverses a local filing: the filing record is cleared, the cache
// entries are removed and the "Filed" label is taken off. It does not mark
// the email "don't file" and does not touch the remote document.
func (s *Service) Unfile(ctx context.Context, item resolver.CurrentItemContext) (*UnfileOutput, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}
	s.resolver.ClearLocal(ctx, item)
	toggle := s.labels.Apply(ctx, item.Key(), "")
	s.log.Info().Str("item", item.Key()).Msg("unfiled")
	return &UnfileOutput{ItemKey: item.Key(), Labels: toggle}, nil
}

// OverrideOutput contains the result of DoNotFile and AllowFiling.
type OverrideOutput struct {
	ItemKey  string        `json:"itemKey"`
	Override bool          `json:"override"`
	Labels   labels.Toggle `json:"labels"`
}

// DoNotFile marks the email "don't file" by giving it the "Unfiled" label,
// which overrides any other filing evidence.
func (s *Service) DoNotFile(ctx context.Context, item resolver.CurrentItemContext) (*OverrideOutput, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}
	toggle := s.labels.Apply(ctx, item.Key(), labels.Unfiled)
	s.log.Info().Str("item", item.Key()).Bool("converged", toggle.Converged).Msg("marked do-not-file")
	return &OverrideOutput{ItemKey: item.Key(), Override: true, Labels: toggle}, nil
}

// AllowFiling removes a "don't file" mark. Other labels are left alone.
func (s *Service) AllowFiling(ctx context.Context, item resolver.CurrentItemContext) (*OverrideOutput, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}
	key := item.Key()
	current, err := s.labels.Read(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("item", key).Msg("label read failed, clearing override anyway")
	}

	target := ""
	if current.Filed && !current.Unfiled {
		target = labels.Filed
	}
	toggle := s.labels.Apply(ctx, key, target)
	s.log.Info().Str("item", key).Msg("do-not-file mark removed")
	return &OverrideOutput{ItemKey: key, Override: false, Labels: toggle}, nil
}
