package adapter

import (
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voltoralabs/voltora/internal/adapter/domain"
	"github.com/voltoralabs/voltora/internal/adapter/meridian"
)

// DefaultSource is the adapter used when a billing source has no dedicated
// implementation. Meridian is the sole billing client today; new clients get
// their own entry here.
const DefaultSource = meridian.SourceType

type Params struct {
	fx.In

	Log      *zap.Logger
	Meridian *meridian.Adapter
}

// Registry maps source types to billing adapters, keyed lowercase.
type Registry struct {
	log         *zap.Logger
	adapters    map[string]domain.Adapter
	defaultName string
}

func NewRegistry(p Params) *Registry {
	r := &Registry{
		log:         p.Log.Named("adapter.registry"),
		adapters:    map[string]domain.Adapter{},
		defaultName: DefaultSource,
	}
	r.register(p.Meridian)
	return r
}

func (r *Registry) register(a domain.Adapter) {
	r.adapters[strings.ToLower(strings.TrimSpace(a.Name()))] = a
}

// ForSource returns the adapter registered for the source type, falling back
// to the default adapter for unrecognized sources.
func (r *Registry) ForSource(sourceType string) domain.Adapter {
	key := strings.ToLower(strings.TrimSpace(sourceType))
	if a, ok := r.adapters[key]; ok {
		return a
	}
	r.log.Debug("no dedicated billing adapter, using default",
		zap.String("source_type", key),
		zap.String("default", r.defaultName),
	)
	return r.adapters[r.defaultName]
}
