package manifest

import (
	"fmt"

	"github.com/thakyz/pluginmaster/internal/config"
)

// Manifest is a plugin's metadata as a field name to value mapping. Values
// keep whatever type encoding/json decoded them to.
type Manifest map[string]any

func (m Manifest) Has(field string) bool {
	_, ok := m[field]
	return ok
}

// String returns the field as a string. Non-string values are formatted with
// %v so numeric versions such as 1.0 still produce usable identities.
func (m Manifest) String(field string) (string, bool) {
	v, ok := m[field]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprintf("%v", v), true
}

func (m Manifest) InternalName() string {
	s, _ := m.String(config.FieldInternalName)
	return s
}

func (m Manifest) AssemblyVersion() string {
	s, _ := m.String(config.FieldAssemblyVersion)
	return s
}

// Clone returns a shallow copy.
func (m Manifest) Clone() Manifest {
	ret := make(Manifest, len(m))
	for k, v := range m {
		ret[k] = v
	}
	return ret
}

type Manifests []Manifest

// Find returns the first manifest with the given internal name.
func (l Manifests) Find(internalName string) Manifest {
	for _, m := range l {
		if m.InternalName() == internalName {
			return m
		}
	}
	return nil
}
