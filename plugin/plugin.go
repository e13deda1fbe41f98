// Package plugin wires optional components (metric exporters) from the
// `plugin` config section: factories are registered in code, instances are
// created from config.
package plugin

// Type is the kind of component a factory builds.
type Type string

const (
	// Metrics is the type of metric reporters.
	Metrics Type = "metrics"
)

// Factory builds plugin instances of one implementation.
type Factory interface {
	// Type returns the plugin type.
	Type() Type
	// Name returns the implementation name, the key under the type section.
	Name() string
	// ConfigType returns a pointer to an empty config struct for mapstructure.
	ConfigType() any
	// Setup creates an instance from the decoded config.
	Setup(any) (Plugin, error)
	// Destroy releases an instance created by Setup.
	Destroy(Plugin)
}

// Plugin is a running instance.
type Plugin interface {
	FactoryName() string
}
