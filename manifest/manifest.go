// Package manifest declares beans from a YAML document. Every bean is backed
// by a recording stub, which makes manifests useful for inspecting plans and
// rehearsing lifecycles without the real constructors.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/centraunit/assembly"
	"github.com/centraunit/assembly/config"
	"gopkg.in/yaml.v3"
)

// Manifest is a list of bean declarations.
type Manifest struct {
	Beans []BeanSpec `yaml:"beans" validate:"required,min=1,dive"`
}

// BeanSpec declares one bean. Services are referred to by name; a trailing
// "?" in Requires marks the dependency optional.
type BeanSpec struct {
	Name        string         `yaml:"name" validate:"required"`
	Provides    []string       `yaml:"provides" validate:"dive,required"`
	Cardinality string         `yaml:"cardinality" validate:"omitempty,oneof=singleton stateless per-request"`
	Realm       string         `yaml:"realm"`
	Framework   bool           `yaml:"framework"`
	Requires    []string       `yaml:"requires" validate:"dive,required"`
	After       []string       `yaml:"after" validate:"dive,required"`
	Eager       bool           `yaml:"eager"`
	Instance    bool           `yaml:"instance"`
	Callbacks   []CallbackSpec `yaml:"callbacks" validate:"dive"`
}

// CallbackSpec declares one lifecycle callback. Fail makes it return an error.
type CallbackSpec struct {
	Name     string `yaml:"name" validate:"required"`
	Phase    string `yaml:"phase" validate:"required,oneof=initialize start stop"`
	Ordering string `yaml:"ordering" validate:"omitempty,oneof=pre post"`
	Fail     bool   `yaml:"fail"`
}

// Stub is the value of every manifest bean.
type Stub struct {
	Bean string
	Args []any
}

// ServiceKey returns the key a manifest service name maps to.
func ServiceKey(name string) assembly.Key {
	return assembly.NamedKey[*Stub](name)
}

// Load reads and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := config.ValidateStruct(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Descriptors converts the manifest into bean descriptors whose constructors
// and callbacks record into journal.
func (m *Manifest) Descriptors(journal *Journal) []*assembly.BeanDescriptor {
	descs := make([]*assembly.BeanDescriptor, 0, len(m.Beans))
	for _, bs := range m.Beans {
		descs = append(descs, bs.descriptor(journal))
	}
	return descs
}

func (s BeanSpec) descriptor(journal *Journal) *assembly.BeanDescriptor {
	name := s.Name
	d := &assembly.BeanDescriptor{
		Name:        name,
		Cardinality: assembly.Cardinality(s.Cardinality),
		Owner:       assembly.ApplicationRealm,
		Eager:       s.Eager,
	}
	if s.Realm != "" {
		d.Owner = assembly.Realm{Name: s.Realm, Framework: s.Framework}
	}

	provides := s.Provides
	if len(provides) == 0 {
		provides = []string{name}
	}
	for _, p := range provides {
		d.Provides = append(d.Provides, ServiceKey(p))
	}
	for _, r := range s.Requires {
		service, optional := strings.CutSuffix(r, "?")
		d.Dependencies = append(d.Dependencies, assembly.Dependency{Key: ServiceKey(service), Optional: optional})
	}
	for _, a := range s.After {
		d.DependsOn = append(d.DependsOn, ServiceKey(a))
	}

	if s.Instance {
		d.Source = assembly.FixedInstance(&Stub{Bean: name})
	} else {
		d.Source = assembly.Factory("stub"+name, func(args []any) (any, error) {
			journal.Record("construct " + name)
			return &Stub{Bean: name, Args: args}, nil
		})
	}

	for _, cb := range s.Callbacks {
		d.Callbacks = append(d.Callbacks, cb.callback(name, journal))
	}
	return d
}

func (c CallbackSpec) callback(bean string, journal *Journal) assembly.Callback {
	ordering := assembly.Pre
	if c.Ordering == "post" {
		ordering = assembly.Post
	}
	phase := assembly.Phase(c.Phase)
	entry := fmt.Sprintf("%s-%s %s.%s", phase, ordering, bean, c.Name)
	fail := c.Fail
	return assembly.Callback{
		Phase:    phase,
		Ordering: ordering,
		Name:     c.Name,
		Fn: func(*assembly.LifetimeContext, any) error {
			journal.Record(entry)
			if fail {
				return fmt.Errorf("%s: simulated failure", entry)
			}
			return nil
		},
	}
}
