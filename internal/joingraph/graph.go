package joingraph

import (
	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/schema"
)

// ColumnPair is one equality condition of an edge: From.Left = To.Right.
type ColumnPair struct {
	Left  string
	Right string
}

// Edge connects two tables. Pairs are ordered as declared in the template,
// with Left naming columns of From.
type Edge struct {
	From  string
	To    string
	Pairs []ColumnPair
}

// Graph is an undirected adjacency structure over table names.
type Graph struct {
	// neighbours keeps edges in insertion order for deterministic BFS.
	neighbours map[string][]*Edge
	tables     []string
	log        *zap.Logger
}

// New builds the graph from join templates.
func New(templates []schema.JoinTemplate, log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Graph{
		neighbours: make(map[string][]*Edge),
		log:        log,
	}

	for _, tmpl := range templates {
		forward := make([]ColumnPair, len(tmpl.Left.Columns))
		reverse := make([]ColumnPair, len(tmpl.Left.Columns))
		for i := range tmpl.Left.Columns {
			forward[i] = ColumnPair{Left: tmpl.Left.Columns[i], Right: tmpl.Right.Columns[i]}
			reverse[i] = ColumnPair{Left: tmpl.Right.Columns[i], Right: tmpl.Left.Columns[i]}
		}
		g.put(tmpl.Left.Table, tmpl.Right.Table, forward)
		if tmpl.Left.Table != tmpl.Right.Table {
			g.put(tmpl.Right.Table, tmpl.Left.Table, reverse)
		}
	}

	return g
}

func (g *Graph) put(from, to string, pairs []ColumnPair) {
	if _, ok := g.neighbours[from]; !ok {
		g.tables = append(g.tables, from)
	}
	for _, e := range g.neighbours[from] {
		if e.To == to {
			g.log.Debug("join template replaces an earlier one for the same tables",
				zap.String("from", from),
				zap.String("to", to),
			)
			e.Pairs = pairs
			return
		}
	}
	g.neighbours[from] = append(g.neighbours[from], &Edge{From: from, To: to, Pairs: pairs})
}

// HasTable reports whether any edge touches the table.
func (g *Graph) HasTable(name string) bool {
	_, ok := g.neighbours[name]
	return ok
}

// Tables returns every table with an edge, in first-seen order.
func (g *Graph) Tables() []string {
	out := make([]string, len(g.tables))
	copy(out, g.tables)
	return out
}

// Edge returns the edge from one table to another.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	for _, e := range g.neighbours[from] {
		if e.To == to {
			pairs := make([]ColumnPair, len(e.Pairs))
			copy(pairs, e.Pairs)
			return Edge{From: e.From, To: e.To, Pairs: pairs}, true
		}
	}
	return Edge{}, false
}

// Path returns the shortest sequence of tables from one table to another,
// both included.
func (g *Graph) Path(from, to string) ([]string, error) {
	if from == to {
		return []string{from}, nil
	}
	for _, t := range []string{from, to} {
		if !g.HasTable(t) {
			g.log.Warn("table has no join templates", zap.String("table", t))
			return nil, &JoinPathError{From: from, To: to, Reason: "table " + t + " has no join templates"}
		}
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, e := range g.neighbours[current] {
			if _, seen := prev[e.To]; seen {
				continue
			}
			prev[e.To] = current
			if e.To == to {
				return unwind(prev, from, to), nil
			}
			queue = append(queue, e.To)
		}
	}

	g.log.Warn("no join path between tables", zap.String("from", from), zap.String("to", to))
	return nil, &JoinPathError{From: from, To: to, Reason: "no join path connects the tables"}
}

func unwind(prev map[string]string, from, to string) []string {
	var path []string
	for t := to; t != from; t = prev[t] {
		path = append(path, t)
	}
	path = append(path, from)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Components partitions tables into groups that can be joined with each
// other. Tables without any edge form their own group. Groups and their
// members follow the order of the tables argument.
func (g *Graph) Components(tables []string) [][]string {
	assigned := make(map[string]bool, len(tables))
	var groups [][]string

	for _, start := range tables {
		if assigned[start] {
			continue
		}
		reached := map[string]bool{start: true}
		queue := []string{start}
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for _, e := range g.neighbours[current] {
				if !reached[e.To] {
					reached[e.To] = true
					queue = append(queue, e.To)
				}
			}
		}

		var group []string
		for _, t := range tables {
			if reached[t] && !assigned[t] {
				assigned[t] = true
				group = append(group, t)
			}
		}
		groups = append(groups, group)
	}

	return groups
}

// Nearest returns the closest table to from, in BFS order, that satisfies
// match. from itself is considered first.
func (g *Graph) Nearest(from string, match func(table string) bool) (string, bool) {
	if match(from) {
		return from, true
	}
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.neighbours[current] {
			if seen[e.To] {
				continue
			}
			if match(e.To) {
				return e.To, true
			}
			seen[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return "", false
}
