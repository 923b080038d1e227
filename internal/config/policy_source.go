package config

import (
	"fmt"
	"sync/atomic"

	"github.com/spf13/viper"

	"go-inventory-ledger/internal/policy"
)

// PolicySource serves the live policy.Set. Refresh re-reads the policy
// section and swaps the Set atomically, so evaluations in flight keep the
// Set they started with.
type PolicySource struct {
	v       *viper.Viper
	current atomic.Pointer[policy.Set]
}

func NewPolicySource(v *viper.Viper) (*PolicySource, error) {
	s := &PolicySource{v: v}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PolicySource) Current() policy.Set {
	return *s.current.Load()
}

// Refresh re-reads the config file when one is set. On error the previous
// Set stays in place.
func (s *PolicySource) Refresh() error {
	if s.v.ConfigFileUsed() != "" {
		if err := s.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reload config: %w", err)
		}
	}
	var pc PolicyConfig
	if err := s.v.UnmarshalKey("policy", &pc); err != nil {
		return fmt.Errorf("decode policy: %w", err)
	}
	set, err := pc.Set()
	if err != nil {
		return err
	}
	s.current.Store(&set)
	return nil
}
