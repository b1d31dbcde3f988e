package compiler

import (
	"fmt"
	"log/slog"

	"github.com/roach88/deduce/internal/builtin"
	"github.com/roach88/deduce/internal/config"
	"github.com/roach88/deduce/internal/ir"
)

// Stratifier partitions rules into strata 0..k such that every negative
// dependency targets a strictly earlier stratum.
type Stratifier interface {
	Name() string

	// Stratify returns the strata in evaluation order, or a
	// *ProgramNotStratifiedError. The returned rules may differ from the
	// input when the stratifier rewrites them.
	Stratify(rules []ir.Rule) ([][]ir.Rule, error)
}

// equalityPredicate is the pseudo head predicate of rule-head equality
// rules. No body literal can reference it.
var equalityPredicate = ir.Pred("=", 2)

func headPredicate(r ir.Rule) ir.Predicate {
	if r.IsHeadEquality() {
		return equalityPredicate
	}
	return r.Head.Atom.Predicate
}

// StratifiersFromConfig resolves the configured stratifier names in order.
func StratifiersFromConfig(cfg config.Config, reg *builtin.Registry) ([]Stratifier, error) {
	out := make([]Stratifier, 0, len(cfg.Stratifiers))
	for _, name := range cfg.Stratifiers {
		switch name {
		case config.StratifierGlobal:
			out = append(out, GlobalStratifier{})
		case config.StratifierLocalStrict:
			out = append(out, NewLocalStratifier(true, reg))
		case config.StratifierLocalNonStrict:
			out = append(out, NewLocalStratifier(false, reg))
		default:
			return nil, fmt.Errorf("unknown stratifier %q", name)
		}
	}
	return out, nil
}

// Stratify tries each stratifier in order and returns the strata of the
// first that succeeds, together with its name. When all fail the first
// error is returned, since the global stratifier can name a cycle.
func Stratify(rules []ir.Rule, stratifiers []Stratifier) ([][]ir.Rule, string, error) {
	if len(stratifiers) == 0 {
		stratifiers = []Stratifier{GlobalStratifier{}}
	}
	var first error
	for _, s := range stratifiers {
		strata, err := s.Stratify(rules)
		if err == nil {
			slog.Debug("program stratified",
				"stratifier", s.Name(),
				"strata", len(strata),
				"rules", len(rules))
			return strata, s.Name(), nil
		}
		slog.Debug("stratifier failed", "stratifier", s.Name(), "error", err)
		if first == nil {
			first = err
		}
	}
	return nil, "", first
}

// =============================================================================
// Global stratification
// =============================================================================

// GlobalStratifier assigns every rule the stratum of its head predicate's
// strongly connected component in the predicate dependency graph.
//
// The algorithm:
//  1. Build the body → head predicate graph with polarity-tagged edges
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Fail if an edge inside one component is negative
//  4. Rank components in topological order: a positive edge keeps the
//     rank, a negative edge raises it by one
//  5. Group rules by rank, dropping ranks that hold no rule
type GlobalStratifier struct{}

func (GlobalStratifier) Name() string { return config.StratifierGlobal }

func (GlobalStratifier) Stratify(rules []ir.Rule) ([][]ir.Rule, error) {
	if len(rules) == 0 {
		return [][]ir.Rule{}, nil
	}

	g := buildDependencyGraph(rules)
	sccs := tarjanSCC(g)

	comp := make([]int, len(g.preds))
	for c, scc := range sccs {
		for _, n := range scc {
			comp[n] = c
		}
	}

	for _, scc := range sccs {
		for _, u := range scc {
			for _, e := range g.adj[u] {
				if e.negative && comp[e.to] == comp[u] {
					return nil, &ProgramNotStratifiedError{
						Cycle:      g.names(negativeCyclePath(g, comp, u, e.to)),
						Stratifier: config.StratifierGlobal,
					}
				}
			}
		}
	}

	// Tarjan emits a component only after every component reachable from
	// it, so walking the list backwards visits sources first.
	rank := make([]int, len(sccs))
	for c := len(sccs) - 1; c >= 0; c-- {
		for _, u := range sccs[c] {
			for _, e := range g.adj[u] {
				target := comp[e.to]
				if target == c {
					continue
				}
				next := rank[c]
				if e.negative {
					next++
				}
				rank[target] = max(rank[target], next)
			}
		}
	}

	byRank := make(map[int][]ir.Rule)
	highest := 0
	for _, r := range rules {
		k := rank[comp[g.ids[headPredicate(r)]]]
		byRank[k] = append(byRank[k], r)
		highest = max(highest, k)
	}

	strata := make([][]ir.Rule, 0, len(byRank))
	for k := 0; k <= highest; k++ {
		if rs := byRank[k]; len(rs) > 0 {
			strata = append(strata, rs)
		}
	}
	return strata, nil
}

// depEdge is a body → head dependency.
type depEdge struct {
	to       int
	negative bool
}

// depGraph is the predicate dependency graph as an arena: nodes are
// addressed by index, in first-occurrence order.
type depGraph struct {
	preds []ir.Predicate
	ids   map[ir.Predicate]int
	adj   [][]depEdge
}

func (g *depGraph) node(p ir.Predicate) int {
	if id, ok := g.ids[p]; ok {
		return id
	}
	id := len(g.preds)
	g.preds = append(g.preds, p)
	g.ids[p] = id
	g.adj = append(g.adj, nil)
	return id
}

func (g *depGraph) names(path []int) []ir.Predicate {
	out := make([]ir.Predicate, len(path))
	for i, n := range path {
		out[i] = g.preds[n]
	}
	return out
}

// buildDependencyGraph adds an edge from every ordinary body predicate to
// the head predicate of its rule.
func buildDependencyGraph(rules []ir.Rule) *depGraph {
	g := &depGraph{ids: make(map[ir.Predicate]int)}
	for _, r := range rules {
		head := g.node(headPredicate(r))
		for _, l := range r.Body {
			if l.Atom.IsBuiltin() {
				continue
			}
			body := g.node(l.Atom.Predicate)
			g.adj[body] = append(g.adj[body], depEdge{to: head, negative: !l.Positive})
		}
	}
	return g
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Components are returned in reverse topological order: a component
// appears after every component it has an edge to.
func tarjanSCC(g *depGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(g.preds))
		lowlink = make([]int, len(g.preds))
		onStack = make([]bool, len(g.preds))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range g.adj[v] {
			w := e.to
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root: pop its component.
		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for n := range g.preds {
		if indices[n] < 0 {
			strongConnect(n)
		}
	}
	return sccs
}

// negativeCyclePath reconstructs a cycle through the negative edge from → to
// by searching breadth-first for the shortest path from to back to from
// inside their component. The path starts and ends with from.
func negativeCyclePath(g *depGraph, comp []int, from, to int) []int {
	if from == to {
		return []int{from, from}
	}
	prev := map[int]int{to: -1}
	queue := []int{to}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		if u == from {
			break
		}
		for _, e := range g.adj[u] {
			if comp[e.to] != comp[from] {
				continue
			}
			if _, seen := prev[e.to]; !seen {
				prev[e.to] = u
				queue = append(queue, e.to)
			}
		}
	}

	var back []int
	for n := from; n != -1; n = prev[n] {
		back = append(back, n)
	}
	path := []int{from}
	for i := len(back) - 1; i >= 0; i-- {
		path = append(path, back[i])
	}
	return path
}

// =============================================================================
// Local stratification
// =============================================================================

// LocalStratifier assigns strata per rule rather than per predicate, using
// the constants in rule heads and negated literals to separate rules that
// a predicate-level graph would merge.
//
// Rules are adorned with the constants of their heads. A negated literal
// with constants that consumes only part of a rule's output splits that
// rule in two: an exact-match copy constrained with X = c and a no-match
// copy constrained with X != c. Rule strata are then raised to a fixpoint
// (positive dependency: at least the producer's stratum, negative: above
// it). Raising past the rule count means a cycle through negation.
//
// Strict controls the analysis: with strict, constants from body
// equalities are substituted into the whole rule; without, only into the
// head, so fewer dependencies can be told apart.
type LocalStratifier struct {
	Strict   bool
	registry *builtin.Registry
}

// NewLocalStratifier creates a local stratifier.
func NewLocalStratifier(strict bool, reg *builtin.Registry) LocalStratifier {
	if reg == nil {
		reg = builtin.Default()
	}
	return LocalStratifier{Strict: strict, registry: reg}
}

func (s LocalStratifier) Name() string {
	if s.Strict {
		return config.StratifierLocalStrict
	}
	return config.StratifierLocalNonStrict
}

// adornment describes what a rule can produce at one head position.
type adornment struct {
	// constant is set when the position always holds this term.
	constant ir.Term
	// excluded lists terms the position never holds.
	excluded []ir.Term
	// opaque positions hold a non-variable, non-ground term and are never
	// split.
	opaque bool
}

type matchType int

const (
	matchNone   matchType = iota
	matchSubset           // the literal consumes part of the rule's output
	matchAll              // the literal consumes all of it
)

// adornedRule pairs a rule with the normalized view used for analysis.
// The rule itself is what gets evaluated; splitting only ever adds
// constraint literals to it.
type adornedRule struct {
	rule       ir.Rule
	view       ir.Rule
	adornments []adornment
}

func (a *adornedRule) match(args ir.Tuple) matchType {
	if len(args) != len(a.adornments) {
		return matchNone
	}
	result := matchAll
	for i, t := range args {
		ad := a.adornments[i]
		if !t.IsGround() || ad.opaque {
			continue
		}
		if ad.constant != nil {
			if !ir.Equal(ad.constant, t) {
				return matchNone
			}
			continue
		}
		for _, x := range ad.excluded {
			if ir.Equal(x, t) {
				return matchNone
			}
		}
		result = matchSubset
	}
	return result
}

// splitPosition returns the first head position at which a literal with
// args consumes only part of the rule's output.
func (a *adornedRule) splitPosition(args ir.Tuple) int {
	for i, t := range args {
		ad := a.adornments[i]
		if t.IsGround() && !ad.opaque && ad.constant == nil {
			return i
		}
	}
	return -1
}

func (s LocalStratifier) normalize(r ir.Rule) ir.Rule {
	r = replaceVariablesWithConstants(r, s.Strict, true)
	r = replaceVariablesWithVariables(r, s.registry)
	r = removeUnnecessaryEqualities(r)
	return removeDuplicateLiterals(r)
}

// unsatisfiable reports whether the view contains a ground builtin that
// evaluates to false, so the rule can never fire.
func (s LocalStratifier) unsatisfiable(view ir.Rule) bool {
	for _, l := range view.Body {
		if !l.Atom.IsBuiltin() || !l.Atom.Args.IsGround() {
			continue
		}
		res, err := s.registry.Evaluate(l.Atom, nil)
		if err != nil || res.Outcome == builtin.NotEvaluable {
			continue
		}
		if (res.Outcome == builtin.True) != l.Positive {
			return true
		}
	}
	return false
}

func (s LocalStratifier) adorn(r ir.Rule) *adornedRule {
	view := s.normalize(r)
	head := view.Head.Atom.Args
	ads := make([]adornment, len(head))
	for i, t := range head {
		switch {
		case t.IsGround():
			ads[i].constant = t
		case !isVariable(t):
			ads[i].opaque = true
		}
	}
	return &adornedRule{rule: r, view: view, adornments: ads}
}

func isVariable(t ir.Term) bool {
	_, ok := t.(ir.Variable)
	return ok
}

// split divides a at head position pos on the constant c into an
// exact-match rule and a no-match rule.
func (s LocalStratifier) split(a *adornedRule, pos int, c ir.Term) (exact, none *adornedRule) {
	ruleVar, ruleOK := a.rule.Head.Atom.Args[pos].(ir.Variable)
	viewVar, viewOK := a.view.Head.Atom.Args[pos].(ir.Variable)
	if !ruleOK || !viewOK {
		return nil, nil
	}

	exactAds := append([]adornment(nil), a.adornments...)
	exactAds[pos] = adornment{constant: c}
	exact = &adornedRule{
		rule:       addEquality(a.rule, ruleVar, c),
		view:       s.normalize(addEquality(a.view, viewVar, c)),
		adornments: exactAds,
	}

	noneAds := append([]adornment(nil), a.adornments...)
	noneAds[pos].excluded = append(append([]ir.Term(nil), a.adornments[pos].excluded...), c)
	none = &adornedRule{
		rule:       addInequality(a.rule, ruleVar, c),
		view:       addInequality(a.view, viewVar, c),
		adornments: noneAds,
	}
	return exact, none
}

func (s LocalStratifier) Stratify(rules []ir.Rule) ([][]ir.Rule, error) {
	if len(rules) == 0 {
		return [][]ir.Rule{}, nil
	}

	adorned := make([]*adornedRule, 0, len(rules))
	for _, r := range rules {
		adorned = append(adorned, s.adorn(r))
	}
	adorned = s.splitRules(adorned)

	var live []*adornedRule
	for _, a := range adorned {
		if !s.unsatisfiable(a.view) {
			live = append(live, a)
		}
	}

	n := len(live)
	stratum := make([]int, n)
	highest := 0
	for change := true; change && highest <= n; {
		change = false
		for r, a := range live {
			for _, bl := range a.view.Body {
				if bl.Atom.IsBuiltin() {
					continue
				}
				for r2, producer := range live {
					if headPredicate(producer.view) != bl.Atom.Predicate || producer.match(bl.Atom.Args) == matchNone {
						continue
					}
					want := stratum[r2]
					if !bl.Positive {
						want++
					}
					if stratum[r] < want {
						stratum[r] = want
						change = true
					}
					highest = max(highest, stratum[r])
				}
			}
		}
	}
	if highest >= max(n, 1) {
		return nil, &ProgramNotStratifiedError{Stratifier: s.Name()}
	}

	byStratum := make([][]ir.Rule, highest+1)
	for r, a := range live {
		byStratum[stratum[r]] = append(byStratum[stratum[r]], a.rule)
	}
	strata := make([][]ir.Rule, 0, len(byStratum))
	for _, rs := range byStratum {
		if len(rs) > 0 {
			strata = append(strata, rs)
		}
	}
	return strata, nil
}

// splitRules splits rules until no negated literal with constants consumes
// only part of any rule's output.
func (s LocalStratifier) splitRules(rules []*adornedRule) []*adornedRule {
	for {
		split := false
	scan:
		for _, consumer := range rules {
			for _, l := range consumer.view.Body {
				if l.Positive || l.Atom.IsBuiltin() || !hasGroundTerm(l.Atom.Args) {
					continue
				}
				for i, producer := range rules {
					if headPredicate(producer.view) != l.Atom.Predicate || producer.match(l.Atom.Args) != matchSubset {
						continue
					}
					pos := producer.splitPosition(l.Atom.Args)
					if pos < 0 {
						continue
					}
					exact, none := s.split(producer, pos, l.Atom.Args[pos])
					if exact == nil {
						producer.adornments[pos].opaque = true
						split = true
						break scan
					}
					rest := append(append([]*adornedRule(nil), rules[:i]...), rules[i+1:]...)
					rules = append(rest, exact, none)
					split = true
					break scan
				}
			}
		}
		if !split {
			return rules
		}
	}
}

func hasGroundTerm(args ir.Tuple) bool {
	for _, t := range args {
		if t.IsGround() {
			return true
		}
	}
	return false
}
