package strategy

import (
	"sort"

	"github.com/Melashkevich/MarketScan/models"
)

// Registry is a named set of strategies, built once at startup and passed
// by reference wherever strategies are consumed. Lookups of unknown names
// simply miss; they are not errors.
type Registry struct {
	strategies map[string]Strategy
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

func (r *Registry) Register(name string, s Strategy) {
	r.strategies[name] = s
}

func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// Names returns the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry builds the standard strategy set from configuration.
func DefaultRegistry(cfg *models.Config) *Registry {
	r := NewRegistry()
	r.Register("rsi_reversal", NewRSIReversal(cfg.RSIPeriod))
	r.Register("sma_crossover", NewSMACrossover(cfg.FastSMAPeriod, cfg.SlowSMAPeriod))
	return r
}
