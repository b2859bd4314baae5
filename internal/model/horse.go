package model

import "fmt"

// AncestorKind tells which variant an Ancestor holds.
type AncestorKind uint8

const (
	AncestorUnknown AncestorKind = iota
	AncestorResolved
	AncestorUnresolved
)

func (k AncestorKind) String() string {
	switch k {
	case AncestorResolved:
		return "resolved"
	case AncestorUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Ancestor is a pedigree link: a resolved Horse, an unresolved name, or
// nothing at all. The zero value is Unknown. Ancestors share the referenced
// Horse and never modify it.
type Ancestor struct {
	kind  AncestorKind
	horse *Horse
	name  string
}

func ResolvedAncestor(h Horse) Ancestor {
	return Ancestor{kind: AncestorResolved, horse: &h, name: h.Name}
}

// UnresolvedAncestor returns an Unknown ancestor for a blank name.
func UnresolvedAncestor(name string) Ancestor {
	if normalizeName(name) == "" {
		return Ancestor{}
	}
	return Ancestor{kind: AncestorUnresolved, name: name}
}

func (a Ancestor) Kind() AncestorKind {
	return a.kind
}

func (a Ancestor) Name() string {
	return a.name
}

func (a Ancestor) Horse() (Horse, bool) {
	if a.kind != AncestorResolved {
		return Horse{}, false
	}
	return *a.horse, true
}

// Resolve binds an unresolved ancestor to its full record and returns the new
// ancestor. The receiver is left as it was.
func (a Ancestor) Resolve(h Horse) (Ancestor, error) {
	switch a.kind {
	case AncestorUnknown:
		return Ancestor{}, fmt.Errorf("cannot resolve an unknown ancestor to %q", h.Name)
	case AncestorResolved:
		if a.horse.Equal(h) {
			return a, nil
		}
		return Ancestor{}, fmt.Errorf("ancestor already resolved to %q", a.name)
	}

	if normalizeName(a.name) != normalizeName(h.Name) {
		return Ancestor{}, fmt.Errorf("ancestor %q does not match horse %q", a.name, h.Name)
	}
	return ResolvedAncestor(h), nil
}

func (a Ancestor) Equal(b Ancestor) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case AncestorResolved:
		return a.horse.Equal(*b.horse)
	case AncestorUnresolved:
		return normalizeName(a.name) == normalizeName(b.name)
	}
	return true
}

type Horse struct {
	Name      string   `json:"name"`
	BirthYear int      `json:"birth_year"`
	Sex       string   `json:"sex"`
	Sire      Ancestor `json:"-"`
	Dam       Ancestor `json:"-"`
}

// Key is the identity used by the pedigree table.
func (h Horse) Key() string {
	return normalizeName(h.Name)
}

// Equal compares horses by value, ancestors included.
func (h Horse) Equal(o Horse) bool {
	return h.Key() == o.Key() &&
		h.BirthYear == o.BirthYear &&
		h.Sex == o.Sex &&
		h.Sire.Equal(o.Sire) &&
		h.Dam.Equal(o.Dam)
}

func (h Horse) WithSire(a Ancestor) Horse {
	h.Sire = a
	return h
}

func (h Horse) WithDam(a Ancestor) Horse {
	h.Dam = a
	return h
}
