package component

import (
	"encoding/json"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/c360/stormbridge/errors"
	"github.com/c360/stormbridge/topology"
	"github.com/c360/stormbridge/types"
)

// BoltFactory creates a bolt from its raw configuration.
type BoltFactory func(rawConfig json.RawMessage, deps Dependencies) (topology.Bolt, error)

// SpoutFactory creates a spout from its raw configuration.
type SpoutFactory func(rawConfig json.RawMessage, deps Dependencies) (topology.Spout, error)

// Registration holds a factory and its metadata. Exactly one of Bolt and
// Spout is set, matching Type.
type Registration struct {
	Name        string              `json:"name"`
	Type        types.ComponentType `json:"type"`
	Protocol    string              `json:"protocol"`
	Description string              `json:"description"`
	Version     string              `json:"version"`
	Schema      ConfigSchema        `json:"schema"`
	Bolt        BoltFactory         `json:"-"`
	Spout       SpoutFactory        `json:"-"`
}

// Meta returns the registration's metadata.
func (r *Registration) Meta() Metadata {
	return Metadata{
		Name:        r.Name,
		Type:        r.Type.String(),
		Protocol:    r.Protocol,
		Description: r.Description,
		Version:     r.Version,
	}
}

// RegistrationConfig is the argument to RegisterWithConfig.
type RegistrationConfig struct {
	Name        string
	Type        types.ComponentType
	Protocol    string
	Description string
	Version     string
	Schema      ConfigSchema
	Bolt        BoltFactory
	Spout       SpoutFactory
}

// Instance is a created component.
type Instance struct {
	Name   string
	Config types.ComponentConfig
	Bolt   topology.Bolt
	Spout  topology.Spout
}

// Registry holds factories by name and created instances by instance name.
type Registry struct {
	factories map[string]*Registration
	instances map[string]*Instance
	mu        sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
		instances: make(map[string]*Instance),
	}
}

// RegisterWithConfig registers a factory.
func (r *Registry) RegisterWithConfig(config RegistrationConfig) error {
	return r.RegisterFactory(config.Name, &Registration{
		Name:        config.Name,
		Type:        config.Type,
		Protocol:    config.Protocol,
		Description: config.Description,
		Version:     config.Version,
		Schema:      config.Schema,
		Bolt:        config.Bolt,
		Spout:       config.Spout,
	})
}

// RegisterFactory registers registration under name.
func (r *Registry) RegisterFactory(name string, registration *Registration) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if registration == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "registration validation")
	}
	switch registration.Type {
	case types.ComponentTypeBolt:
		if registration.Bolt == nil || registration.Spout != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "bolt factory validation")
		}
	case types.ComponentTypeSpout:
		if registration.Spout == nil || registration.Bolt != nil {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "spout factory validation")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "component type validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.WrapInvalid(fmt.Errorf("factory '%s' is already registered", name),
			"Registry", "RegisterFactory", "duplicate factory check")
	}
	r.factories[name] = registration
	return nil
}

// CreateComponent runs the factory named by config and records the instance.
func (r *Registry) CreateComponent(
	instanceName string, config types.ComponentConfig, deps Dependencies,
) (*Instance, error) {
	if err := ValidateComponentName(instanceName); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance name validation")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "component config validation")
	}
	if err := ValidateComponentName(config.Name); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory name validation")
	}
	if err := ValidateFactoryConfig(config.Config); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "config security validation")
	}

	r.mu.RLock()
	registration, exists := r.factories[config.Name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(fmt.Errorf("unknown component factory '%s'", config.Name),
			"Registry", "CreateComponent", "factory lookup")
	}
	if registration.Type != config.Type {
		return nil, errors.WrapInvalid(
			fmt.Errorf("component '%s' is type '%s', not '%s'", config.Name, registration.Type, config.Type),
			"Registry", "CreateComponent", "type validation")
	}

	deps.InstanceName = instanceName
	instance := &Instance{Name: instanceName, Config: config}
	var err error
	switch registration.Type {
	case types.ComponentTypeBolt:
		instance.Bolt, err = registration.Bolt(config.Config, deps)
	case types.ComponentTypeSpout:
		instance.Spout, err = registration.Spout(config.Config, deps)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "factory execution")
	}

	if err := r.RegisterInstance(instance); err != nil {
		return nil, errors.Wrap(err, "Registry", "CreateComponent", "instance registration")
	}
	return instance, nil
}

// RegisterInstance records instance under its name.
func (r *Registry) RegisterInstance(instance *Instance) error {
	if instance == nil || instance.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterInstance", "instance validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instances[instance.Name]; exists {
		return errors.WrapInvalid(fmt.Errorf("instance '%s' is already registered", instance.Name),
			"Registry", "RegisterInstance", "duplicate instance check")
	}
	r.instances[instance.Name] = instance
	return nil
}

// UnregisterInstance forgets the instance called name.
func (r *Registry) UnregisterInstance(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.instances, name)
}

// Component returns the instance called name, or nil.
func (r *Registry) Component(name string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[name]
}

// ListComponents returns a copy of the instance map.
func (r *Registry) ListComponents() map[string]*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]*Instance, len(r.instances))
	maps.Copy(result, r.instances)
	return result
}

// ListComponentTypes returns the registered factory names, sorted.
func (r *Registry) ListComponentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListAvailable returns metadata for every registered factory.
func (r *Registry) ListAvailable() map[string]Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]Metadata, len(r.factories))
	for name, registration := range r.factories {
		result[name] = registration.Meta()
	}
	return result
}

// GetComponentSchema returns the configuration schema of a factory.
func (r *Registry) GetComponentSchema(name string) (ConfigSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	registration, exists := r.factories[name]
	if !exists {
		return ConfigSchema{}, errors.WrapInvalid(fmt.Errorf("component type %q not found", name),
			"Registry", "GetComponentSchema", "type lookup")
	}
	return registration.Schema, nil
}
