package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/multierr"
)

// AttributeKind is the type of the values of an attribute
type AttributeKind string

const (
	// KindString is a free text attribute
	KindString AttributeKind = "string"

	// KindBool is a boolean attribute, stored as "true" or "false"
	KindBool AttributeKind = "bool"

	// KindInt is an integer attribute, stored in base 10
	KindInt AttributeKind = "int"

	// KindID is an attribute holding the id of a component
	KindID AttributeKind = "id"
)

// IsValid checks the value of an attribute kind
func (k AttributeKind) IsValid() bool {
	switch k {
	case KindString, KindBool, KindInt, KindID:
		return true
	default:
		return false
	}
}

// AttributeDef describes an attribute of a component type
type AttributeDef struct {
	Name     string        `json:"name" yaml:"name"`
	Kind     AttributeKind `json:"kind" yaml:"kind"`
	Required bool          `json:"required,omitempty" yaml:"required,omitempty"`

	// Reference attributes hold the id of another component, which must remain visible
	Reference bool `json:"reference,omitempty" yaml:"reference,omitempty"`

	// Container marks the reference to the root component owning this one
	Container bool `json:"container,omitempty" yaml:"container,omitempty"`
}

// ComponentType describes the attributes of a type of component
type ComponentType struct {
	Name       string         `json:"name" yaml:"name"`
	Attributes []AttributeDef `json:"attributes" yaml:"attributes"`
}

// Attribute returns the definition of an attribute
func (t ComponentType) Attribute(name string) (AttributeDef, bool) {
	for _, a := range t.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// References lists the reference attributes of this type
func (t ComponentType) References() []AttributeDef {
	var refs []AttributeDef
	for _, a := range t.Attributes {
		if a.Reference {
			refs = append(refs, a)
		}
	}
	return refs
}

// Container returns the attribute referencing the root component owning components of this type
func (t ComponentType) Container() (AttributeDef, bool) {
	for _, a := range t.Attributes {
		if a.Container {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// Schema is the registry of the component types known to a store.
//
// The root type is the type of the components that own the others (e.g. concepts).
type Schema struct {
	root  string
	types map[string]ComponentType
}

// NewSchema builds a registry of component types
func NewSchema(root string, types ...ComponentType) (*Schema, error) {
	s := &Schema{
		root:  root,
		types: make(map[string]ComponentType, len(types)),
	}
	var err error
	for _, t := range types {
		if t.Name == "" {
			err = multierr.Append(err, fmt.Errorf("component type without a name"))
			continue
		}
		if _, exists := s.types[t.Name]; exists {
			err = multierr.Append(err, fmt.Errorf("duplicate component type %q", t.Name))
			continue
		}
		err = multierr.Append(err, validateType(t))
		s.types[t.Name] = t
	}
	if _, ok := s.types[root]; !ok {
		err = multierr.Append(err, fmt.Errorf("root component type %q is not registered", root))
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// MustSchema builds a registry of component types or panics
func MustSchema(root string, types ...ComponentType) *Schema {
	s, err := NewSchema(root, types...)
	if err != nil {
		panic(err)
	}
	return s
}

func validateType(t ComponentType) error {
	var err error
	seen := make(map[string]struct{}, len(t.Attributes))
	containers := 0
	for _, a := range t.Attributes {
		if a.Name == "" || a.Name == IDProperty {
			err = multierr.Append(err, fmt.Errorf("type %q: invalid attribute name %q", t.Name, a.Name))
		}
		if _, dup := seen[a.Name]; dup {
			err = multierr.Append(err, fmt.Errorf("type %q: duplicate attribute %q", t.Name, a.Name))
		}
		seen[a.Name] = struct{}{}
		if !a.Kind.IsValid() {
			err = multierr.Append(err, fmt.Errorf("type %q: attribute %q has an invalid kind %q", t.Name, a.Name, a.Kind))
		}
		if (a.Reference || a.Container) && a.Kind != KindID {
			err = multierr.Append(err, fmt.Errorf("type %q: reference attribute %q must be an id", t.Name, a.Name))
		}
		if a.Container {
			containers++
			if !a.Reference {
				err = multierr.Append(err, fmt.Errorf("type %q: container attribute %q must be a reference", t.Name, a.Name))
			}
		}
	}
	if containers > 1 {
		err = multierr.Append(err, fmt.Errorf("type %q: at most one container attribute is allowed", t.Name))
	}
	return err
}

// Root is the name of the root component type
func (s *Schema) Root() string {
	return s.root
}

// Type returns a registered component type
func (s *Schema) Type(name string) (ComponentType, bool) {
	t, ok := s.types[name]
	return t, ok
}

// Types lists the registered component types, sorted by name
func (s *Schema) Types() []ComponentType {
	types := make([]ComponentType, 0, len(s.types))
	for _, t := range s.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// Normalize validates attributes against a component type and converts them to their canonical form.
//
// Empty values are dropped: an attribute is either set or absent.
func (s *Schema) Normalize(typeName string, attributes map[string]string) (map[string]string, error) {
	t, ok := s.types[typeName]
	if !ok {
		return nil, fmt.Errorf("unknown component type %q", typeName)
	}

	var err error
	normalized := make(map[string]string, len(attributes))
	for name, value := range attributes {
		def, ok := t.Attribute(name)
		if !ok {
			err = multierr.Append(err, fmt.Errorf("type %q has no attribute %q", typeName, name))
			continue
		}
		if value == "" {
			continue
		}
		v, e := canonical(def, value)
		if e != nil {
			err = multierr.Append(err, e)
			continue
		}
		normalized[name] = v
	}
	for _, def := range t.Attributes {
		if _, set := normalized[def.Name]; def.Required && !set {
			err = multierr.Append(err, fmt.Errorf("type %q requires attribute %q", typeName, def.Name))
		}
	}
	if err != nil {
		return nil, err
	}
	return normalized, nil
}

func canonical(def AttributeDef, value string) (string, error) {
	switch def.Kind {
	case KindBool:
		b, err := cast.ToBoolE(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("attribute %q: %w", def.Name, err)
		}
		return strconv.FormatBool(b), nil
	case KindInt:
		i, err := cast.ToInt64E(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("attribute %q: %w", def.Name, err)
		}
		return strconv.FormatInt(i, 10), nil
	case KindID:
		id := strings.TrimSpace(value)
		if strings.ContainsAny(id, " \t\n\x00") {
			return "", fmt.Errorf("attribute %q: invalid component id %q", def.Name, value)
		}
		return id, nil
	default:
		return value, nil
	}
}
