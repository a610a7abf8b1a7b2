package domain

import (
	"maps"
	"slices"

	"go.trai.ch/zerr"
)

// SpecStore holds the parsed specs of all known packages. It has no behavior beyond lookup.
type SpecStore struct {
	specs map[InternedString]*PackageSpec
}

// NewSpecStore creates a store from specs, validating each one.
func NewSpecStore(specs ...*PackageSpec) (*SpecStore, error) {
	s := &SpecStore{specs: make(map[InternedString]*PackageSpec, len(specs))}
	for _, spec := range specs {
		if err := s.Add(spec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add validates spec and adds it to the store.
func (s *SpecStore) Add(spec *PackageSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if _, exists := s.specs[spec.Name]; exists {
		return zerr.With(zerr.Wrap(ErrDuplicatePackage, "package already defined"), "package", spec.Name.String())
	}
	s.specs[spec.Name] = spec
	return nil
}

// Get returns the spec named name.
func (s *SpecStore) Get(name InternedString) (*PackageSpec, bool) {
	spec, ok := s.specs[name]
	return spec, ok
}

// Names returns the sorted names of all specs.
func (s *SpecStore) Names() []InternedString {
	return slices.SortedFunc(maps.Keys(s.specs), InternedString.Compare)
}

// Len returns the number of specs in the store.
func (s *SpecStore) Len() int {
	return len(s.specs)
}
