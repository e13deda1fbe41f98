package prometheus

import (
	"fmt"

	"github.com/linchenxuan/taglog/metrics"
	"github.com/linchenxuan/taglog/plugin"
)

const _factoryName = "prometheus"

// Factory creates Prometheus reporters from the `plugin.metrics.prometheus`
// config section and registers them with the metrics package.
type Factory struct{}

// NewFactory returns the Prometheus reporter factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Type returns the plugin type.
func (f *Factory) Type() plugin.Type {
	return plugin.Metrics
}

// Name returns the name of the plugin implementation.
func (f *Factory) Name() string {
	return _factoryName
}

// ConfigType returns the struct the manager decodes the section into.
func (f *Factory) ConfigType() any {
	return &ReporterConfig{}
}

// Setup starts a reporter and adds it to the global reporter list.
func (f *Factory) Setup(cfgAny any) (plugin.Plugin, error) {
	cfg, ok := cfgAny.(*ReporterConfig)
	if !ok {
		return nil, fmt.Errorf("prometheus setup: unexpected config type %T", cfgAny)
	}
	r, err := NewReporter(cfg)
	if err != nil {
		return nil, err
	}
	metrics.AddReporter(r)
	return r, nil
}

// Destroy removes the reporter from the global list and stops it.
func (f *Factory) Destroy(p plugin.Plugin) {
	r, ok := p.(*Reporter)
	if !ok {
		return
	}
	metrics.RemoveReporter(r)
	r.Stop()
}
