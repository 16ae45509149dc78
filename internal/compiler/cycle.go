package compiler

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/hunt/internal/hunt"
)

// CycleWarning reports puzzles whose unlock rules wait on each other.
//
// A wait cycle is not fatal: an alternative branch (any, hunt_started,
// after_start), a force release or an admin transition can still open one
// member and let the rest follow.
type CycleWarning struct {
	Path    []string `json:"path"` // e.g. ["p1", "p2", "p1"]
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// AnalyzeCycles finds groups of puzzles whose rules reference each other
// (strongly connected components of the wait graph, plus self-waits).
// Output order is deterministic: components sorted by their smallest puzzle.
func AnalyzeCycles(def *Definition) []CycleWarning {
	warnings := []CycleWarning{}
	if len(def.Rules) == 0 {
		return warnings
	}

	g := newWaitGraph(def.Rules)
	for _, group := range g.components() {
		switch {
		case len(group) > 1:
			path := g.loopThrough(group)
			warnings = append(warnings, CycleWarning{
				Path:    path,
				Message: "Puzzles wait on each other: " + strings.Join(path, " → "),
				Level:   "warning",
			})
		case g.waitsOn(group[0], group[0]):
			p := string(group[0])
			warnings = append(warnings, CycleWarning{
				Path:    []string{p, p},
				Message: fmt.Sprintf("Puzzle %s waits on itself", p),
				Level:   "warning",
			})
		}
	}
	return warnings
}

// waitGraph has an edge q → p when some rule for p reads the status of q.
// Adjacency lists are sorted and duplicate-free.
type waitGraph struct {
	next  map[hunt.PuzzleID][]hunt.PuzzleID
	nodes []hunt.PuzzleID
}

func newWaitGraph(rules []RuleSpec) *waitGraph {
	next := make(map[hunt.PuzzleID][]hunt.PuzzleID)
	for _, r := range rules {
		if _, ok := next[r.Puzzle]; !ok {
			next[r.Puzzle] = nil
		}
		for _, ref := range r.When.References() {
			if !slices.Contains(next[ref], r.Puzzle) {
				next[ref] = append(next[ref], r.Puzzle)
			}
		}
	}
	for p := range next {
		slices.Sort(next[p])
	}
	return &waitGraph{next: next, nodes: slices.Sorted(maps.Keys(next))}
}

func (g *waitGraph) waitsOn(p, q hunt.PuzzleID) bool {
	return slices.Contains(g.next[q], p)
}

// components returns the strongly connected components (Tarjan), each
// sorted, ordered by first member.
func (g *waitGraph) components() [][]hunt.PuzzleID {
	w := &sccWalk{
		g:       g,
		index:   make(map[hunt.PuzzleID]int, len(g.nodes)),
		low:     make(map[hunt.PuzzleID]int, len(g.nodes)),
		onStack: make(map[hunt.PuzzleID]bool, len(g.nodes)),
	}
	for _, p := range g.nodes {
		if _, seen := w.index[p]; !seen {
			w.visit(p)
		}
	}
	slices.SortFunc(w.out, func(a, b []hunt.PuzzleID) int { return cmp.Compare(a[0], b[0]) })
	return w.out
}

type sccWalk struct {
	g       *waitGraph
	counter int
	index   map[hunt.PuzzleID]int
	low     map[hunt.PuzzleID]int
	onStack map[hunt.PuzzleID]bool
	stack   []hunt.PuzzleID
	out     [][]hunt.PuzzleID
}

func (w *sccWalk) visit(p hunt.PuzzleID) {
	w.index[p], w.low[p] = w.counter, w.counter
	w.counter++
	w.stack = append(w.stack, p)
	w.onStack[p] = true

	for _, q := range w.g.next[p] {
		if _, seen := w.index[q]; !seen {
			w.visit(q)
			w.low[p] = min(w.low[p], w.low[q])
		} else if w.onStack[q] {
			w.low[p] = min(w.low[p], w.index[q])
		}
	}

	if w.low[p] != w.index[p] {
		return
	}
	var group []hunt.PuzzleID
	for {
		top := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		w.onStack[top] = false
		group = append(group, top)
		if top == p {
			break
		}
	}
	slices.Sort(group)
	w.out = append(w.out, group)
}

// loopThrough walks from the group's first puzzle along the smallest
// unvisited in-group edge until it returns to the start.
func (g *waitGraph) loopThrough(group []hunt.PuzzleID) []string {
	start := group[0]
	path := []string{string(start)}
	visited := map[hunt.PuzzleID]bool{start: true}

	for cur := start; ; {
		step, ok := hunt.PuzzleID(""), false
		for _, q := range g.next[cur] {
			if slices.Contains(group, q) && (q == start || !visited[q]) {
				step, ok = q, true
				break
			}
		}
		if !ok {
			return path
		}
		path = append(path, string(step))
		if step == start {
			return path
		}
		visited[step] = true
		cur = step
	}
}
