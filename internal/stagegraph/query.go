package stagegraph

import (
	"slices"

	"scenecraft/internal/provider"
	"scenecraft/internal/stage"
)

// Has reports whether the graph declares id.
func (g *Graph) Has(id stage.ID) bool {
	_, ok := g.index[id]
	return ok
}

// Definition returns a copy of the stage's declaration.
func (g *Graph) Definition(id stage.ID) (Definition, bool) {
	i, ok := g.index[id]
	if !ok {
		return Definition{}, false
	}
	return cloneDefinition(g.defs[i]), true
}

// Order returns every stage in topological order.
func (g *Graph) Order() []stage.ID {
	return slices.Clone(g.order)
}

// DependenciesOf returns the stage's direct dependencies in declaration order.
func (g *Graph) DependenciesOf(id stage.ID) []stage.ID {
	def, _ := g.Definition(id)
	return def.DependsOn
}

// RequiredInputKeys returns the input keys the stage consumes.
func (g *Graph) RequiredInputKeys(id stage.ID) []string {
	def, _ := g.Definition(id)
	return def.Inputs
}

// OutputKeys returns the keys the stage produces.
func (g *Graph) OutputKeys(id stage.ID) []string {
	def, _ := g.Definition(id)
	return def.Outputs
}

// EditableKeys returns the outputs a user may supply by hand.
func (g *Graph) EditableKeys(id stage.ID) []string {
	def, _ := g.Definition(id)
	return def.Editable
}

// ParamKeys returns the tuning parameters the stage accepts as overrides.
func (g *Graph) ParamKeys(id stage.ID) []string {
	def, _ := g.Definition(id)
	return def.Params
}

// ProviderCapability returns the capability that runs the stage.
func (g *Graph) ProviderCapability(id stage.ID) provider.Capability {
	def, _ := g.Definition(id)
	return def.Capability
}

// Producer returns the direct dependency of id that produces key.
func (g *Graph) Producer(id stage.ID, key string) (stage.ID, bool) {
	i, ok := g.index[id]
	if !ok {
		return "", false
	}
	return g.producerAmong(g.defs[i].DependsOn, key)
}

// Downstream returns every stage that transitively depends on id, in
// topological order.
func (g *Graph) Downstream(id stage.ID) []stage.ID {
	start, ok := g.index[id]
	if !ok {
		return nil
	}
	reached := make(map[int]struct{})
	queue := slices.Clone(g.outgoing[start])
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, seen := reached[n]; seen {
			continue
		}
		reached[n] = struct{}{}
		queue = append(queue, g.outgoing[n]...)
	}
	out := make([]stage.ID, 0, len(reached))
	for _, s := range g.order {
		if _, ok := reached[g.index[s]]; ok {
			out = append(out, s)
		}
	}
	return out
}
