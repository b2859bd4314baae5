package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrPedigreeCycle = errors.New("pedigree cycle")

// PedigreeNode is the flattened form of a Horse: ancestors are kept as names.
type PedigreeNode struct {
	Name      string
	BirthYear int
	Sex       string
	Sire      string
	Dam       string
}

// Pedigree stores horses in a lookup table keyed by horse identity, with the
// sire and dam edges kept as names. It holds no nested Horse values.
type Pedigree struct {
	nodes map[string]PedigreeNode
}

func NewPedigree() *Pedigree {
	return &Pedigree{nodes: make(map[string]PedigreeNode)}
}

// Add flattens h and every resolved ancestor into the table. A node already in
// the table keeps its known parents when the new record leaves them empty.
func (p *Pedigree) Add(h Horse) {
	key := h.Key()
	if key == "" {
		return
	}

	node := PedigreeNode{
		Name:      h.Name,
		BirthYear: h.BirthYear,
		Sex:       h.Sex,
		Sire:      h.Sire.Name(),
		Dam:       h.Dam.Name(),
	}
	if prev, ok := p.nodes[key]; ok {
		if node.Sire == "" {
			node.Sire = prev.Sire
		}
		if node.Dam == "" {
			node.Dam = prev.Dam
		}
		if node.BirthYear == 0 {
			node.BirthYear = prev.BirthYear
		}
	}
	p.nodes[key] = node

	for _, a := range []Ancestor{h.Sire, h.Dam} {
		if parent, ok := a.Horse(); ok {
			p.Add(parent)
		}
	}
}

func (p *Pedigree) Len() int {
	return len(p.nodes)
}

func (p *Pedigree) Node(name string) (PedigreeNode, bool) {
	n, ok := p.nodes[normalizeName(name)]
	return n, ok
}

// Horse rebuilds the horse named name. Parents present in the table come back
// resolved, names missing from the table come back unresolved. Each call
// returns new values.
func (p *Pedigree) Horse(name string) (Horse, bool) {
	return p.build(normalizeName(name), map[string]bool{})
}

func (p *Pedigree) build(key string, seen map[string]bool) (Horse, bool) {
	node, ok := p.nodes[key]
	if !ok || seen[key] {
		return Horse{}, false
	}
	seen[key] = true
	defer delete(seen, key)

	h := Horse{Name: node.Name, BirthYear: node.BirthYear, Sex: node.Sex}
	h.Sire = p.ancestor(node.Sire, seen)
	h.Dam = p.ancestor(node.Dam, seen)
	return h, true
}

func (p *Pedigree) ancestor(name string, seen map[string]bool) Ancestor {
	if parent, ok := p.build(normalizeName(name), seen); ok {
		return ResolvedAncestor(parent)
	}
	return UnresolvedAncestor(name)
}

// Validate reports ErrPedigreeCycle when a horse is its own ancestor.
func (p *Pedigree) Validate() error {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(p.nodes))

	var visit func(key string, path []string) error
	visit = func(key string, path []string) error {
		node, ok := p.nodes[key]
		if !ok {
			return nil
		}
		switch state[key] {
		case visiting:
			return fmt.Errorf("%w: %s", ErrPedigreeCycle, strings.Join(append(path, node.Name), " -> "))
		case done:
			return nil
		}

		state[key] = visiting
		path = append(path, node.Name)
		for _, parent := range []string{node.Sire, node.Dam} {
			if err := visit(normalizeName(parent), path); err != nil {
				return err
			}
		}
		state[key] = done
		return nil
	}

	keys := make([]string, 0, len(p.nodes))
	for k := range p.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := visit(k, nil); err != nil {
			return err
		}
	}
	return nil
}
