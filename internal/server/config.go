package server

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/alfredjeanlab/budgets/internal/budget"
	"github.com/alfredjeanlab/budgets/internal/model"
)

// defaultThrottleKey names the builtin config describing the throttle
// policy used by segments without their own.
var defaultThrottleKey = model.ThrottleConfigKey("default")

// builtinConfigs returns default config values that are served when no
// stored config exists for a key.
func (s *BudgetServer) builtinConfigs() map[string]*model.Config {
	out := map[string]*model.Config{}
	if tc, ok := budget.ConfigOf(s.svc.DefaultThrottle()); ok {
		if raw, err := json.Marshal(tc); err == nil {
			out[defaultThrottleKey] = &model.Config{Key: defaultThrottleKey, Value: raw}
		}
	}
	return out
}

// listConfigsWithBuiltins merges builtin configs of a namespace under the
// stored ones. Stored keys win.
func (s *BudgetServer) listConfigsWithBuiltins(ctx context.Context, namespace string) ([]*model.Config, error) {
	stored, err := s.store.ListConfigs(ctx, namespace)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(stored))
	for _, c := range stored {
		seen[c.Key] = true
	}
	for key, cfg := range s.builtinConfigs() {
		if seen[key] || !strings.HasPrefix(key, namespace+":") {
			continue
		}
		stored = append(stored, cfg)
	}
	return stored, nil
}
