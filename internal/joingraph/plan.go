package joingraph

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/querysql"
	"github.com/roach88/surveydb/internal/schema"
)

// Step joins one more table onto the plan.
type Step struct {
	Table string
	On    []querysql.ColumnEquals
}

// Plan is a chain of inner joins starting at Base.
type Plan struct {
	Base  string
	Steps []Step
}

// Tables returns every table of the plan in join order.
func (p *Plan) Tables() []string {
	out := make([]string, 0, len(p.Steps)+1)
	out = append(out, p.Base)
	for _, s := range p.Steps {
		out = append(out, s.Table)
	}
	return out
}

// Joins converts the plan's steps into statement join clauses.
func (p *Plan) Joins() []querysql.Join {
	if len(p.Steps) == 0 {
		return nil
	}
	out := make([]querysql.Join, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = querysql.Join{Table: s.Table, On: s.On}
	}
	return out
}

// Resolve builds the join plan connecting tables. The first table is the
// anchor; duplicates are ignored. A single table needs no graph lookup and
// yields a plan with no steps.
func (g *Graph) Resolve(tables []string) (*Plan, error) {
	if len(tables) == 0 {
		return nil, &JoinPathError{Reason: "no tables to join"}
	}

	base := tables[0]
	plan := &Plan{Base: base}
	joined := map[string]bool{base: true}

	for _, target := range tables[1:] {
		if joined[target] {
			continue
		}
		path, err := g.Path(base, target)
		if err != nil {
			return nil, err
		}

		for i := 1; i < len(path); i++ {
			from, to := path[i-1], path[i]
			if joined[to] {
				continue
			}
			edge, ok := g.Edge(from, to)
			if !ok {
				return nil, &JoinPathError{From: from, To: to, Reason: "missing edge on join path"}
			}
			on := make([]querysql.ColumnEquals, len(edge.Pairs))
			for j, pair := range edge.Pairs {
				on[j] = querysql.ColumnEquals{
					Left:  querysql.ColumnRef{Table: from, Column: pair.Left},
					Right: querysql.ColumnRef{Table: to, Column: pair.Right},
				}
			}
			plan.Steps = append(plan.Steps, Step{Table: to, On: on})
			joined[to] = true
		}
	}

	if len(plan.Steps) > 0 {
		g.log.Debug("resolved join plan",
			zap.Strings("requested", tables),
			zap.Strings("joined", plan.Tables()),
		)
	}
	return plan, nil
}

// Check verifies that every column named in a join condition exists in the
// schema.
func (p *Plan) Check(s *schema.Schema) error {
	for _, step := range p.Steps {
		var missing []string
		for _, on := range step.On {
			for _, ref := range []querysql.ColumnRef{on.Left, on.Right} {
				if _, err := s.Column(ref.Qualified()); err != nil {
					missing = append(missing, ref.Qualified())
				}
			}
		}
		if len(missing) > 0 {
			s.Logger().Error("join condition references missing columns",
				zap.String("table", step.Table),
				zap.Strings("columns", missing),
			)
			return &JoinPathError{
				From:    step.On[0].Left.Table,
				To:      step.Table,
				Columns: missing,
				Reason:  fmt.Sprintf("join onto %s references columns that do not exist", step.Table),
			}
		}
	}
	return nil
}
