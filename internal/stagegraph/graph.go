package stagegraph

import (
	"container/heap"
	"slices"

	"scenecraft/internal/provider"
	"scenecraft/internal/stage"
)

// Definition declares one stage: what it consumes, what it produces, and which
// provider capability runs it.
type Definition struct {
	Stage      stage.ID
	DependsOn  []stage.ID
	Inputs     []string
	Outputs    []string
	Editable   []string
	Params     []string
	Capability provider.Capability
}

// Graph is a validated, immutable stage graph.
type Graph struct {
	defs     []Definition
	index    map[stage.ID]int
	outgoing [][]int
	order    []stage.ID
}

// New validates the definitions and builds a graph. Declaration order is the
// tie-breaker for every ordering the graph reports.
func New(defs ...Definition) (*Graph, error) {
	if len(defs) == 0 {
		return nil, invalidf("no stages declared")
	}
	g := &Graph{
		defs:     make([]Definition, len(defs)),
		index:    make(map[stage.ID]int, len(defs)),
		outgoing: make([][]int, len(defs)),
	}
	for i, def := range defs {
		if def.Stage == "" {
			return nil, invalidf("stage %d has no id", i)
		}
		if _, dup := g.index[def.Stage]; dup {
			return nil, invalidf("duplicate stage %s", def.Stage)
		}
		if def.Capability == "" {
			return nil, invalidf("stage %s has no provider capability", def.Stage)
		}
		g.index[def.Stage] = i
		g.defs[i] = cloneDefinition(def)
	}

	indeg := make([]int, len(defs))
	for i, def := range g.defs {
		seen := make(map[stage.ID]struct{}, len(def.DependsOn))
		for _, dep := range def.DependsOn {
			j, ok := g.index[dep]
			if !ok {
				return nil, invalidf("stage %s depends on unknown stage %s", def.Stage, dep)
			}
			if _, dup := seen[dep]; dup {
				return nil, invalidf("stage %s lists dependency %s twice", def.Stage, dep)
			}
			seen[dep] = struct{}{}
			g.outgoing[j] = append(g.outgoing[j], i)
			indeg[i]++
		}
		for _, key := range def.Editable {
			if !slices.Contains(def.Outputs, key) {
				return nil, invalidf("stage %s marks %q editable but does not produce it", def.Stage, key)
			}
		}
	}
	for i := range g.outgoing {
		slices.Sort(g.outgoing[i])
	}

	order := g.topoOrder(indeg)
	if len(order) != len(g.defs) {
		return nil, cycleError(g.findCycle())
	}
	g.order = order

	for _, def := range g.defs {
		if len(def.DependsOn) == 0 {
			continue
		}
		for _, key := range def.Inputs {
			if _, ok := g.producerAmong(def.DependsOn, key); !ok {
				return nil, invalidf("stage %s input %q is not produced by any dependency", def.Stage, key)
			}
		}
	}
	return g, nil
}

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrder is Kahn's algorithm with a min-heap over declaration index.
func (g *Graph) topoOrder(indeg []int) []stage.ID {
	ready := &intMinHeap{}
	for i, d := range indeg {
		if d == 0 {
			heap.Push(ready, i)
		}
	}
	out := make([]stage.ID, 0, len(g.defs))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, g.defs[n].Stage)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle as a closed path, found by DFS in declaration
// order so the witness is stable.
func (g *Graph) findCycle() []stage.ID {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.defs))
	parent := make([]int, len(g.defs))
	for i := range parent {
		parent[i] = -1
	}
	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}
	for i := range g.defs {
		if color[i] == white && dfs(i) {
			break
		}
	}
	slices.Reverse(cycle)
	path := make([]stage.ID, 0, len(cycle))
	for _, idx := range cycle {
		path = append(path, g.defs[idx].Stage)
	}
	return path
}

func (g *Graph) producerAmong(deps []stage.ID, key string) (stage.ID, bool) {
	for _, dep := range deps {
		if slices.Contains(g.defs[g.index[dep]].Outputs, key) {
			return dep, true
		}
	}
	return "", false
}

func cloneDefinition(def Definition) Definition {
	def.DependsOn = slices.Clone(def.DependsOn)
	def.Inputs = slices.Clone(def.Inputs)
	def.Outputs = slices.Clone(def.Outputs)
	def.Editable = slices.Clone(def.Editable)
	def.Params = slices.Clone(def.Params)
	return def
}
