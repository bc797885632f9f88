package joingraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/surveydb/internal/querysql"
	"github.com/roach88/surveydb/internal/schema"
	"github.com/roach88/surveydb/internal/testutil"
)

func tmpl(left string, leftCols []string, right string, rightCols []string) schema.JoinTemplate {
	return schema.JoinTemplate{
		Type:  schema.JoinTypeInner,
		Left:  schema.JoinSide{Table: left, Columns: leftCols},
		Right: schema.JoinSide{Table: right, Columns: rightCols},
	}
}

func fixtureSchema(t *testing.T) *schema.Schema {
	t.Helper()
	joins, err := schema.ParseJoins([]byte(testutil.JoinsYAML))
	require.NoError(t, err)
	s, err := schema.Parse([]byte(testutil.SchemaYAML), joins, nil)
	require.NoError(t, err)
	return s
}

func col(table, column string) querysql.ColumnRef {
	return querysql.ColumnRef{Table: table, Column: column}
}

func TestNew_EdgesAreMirrored(t *testing.T) {
	g := New([]schema.JoinTemplate{
		tmpl("visit1", []string{"visit_id", "day_obs"}, "ccdvisit1", []string{"visit_id", "obs_day"}),
	}, nil)

	forward, ok := g.Edge("visit1", "ccdvisit1")
	require.True(t, ok)
	assert.Equal(t, []ColumnPair{{"visit_id", "visit_id"}, {"day_obs", "obs_day"}}, forward.Pairs)

	reverse, ok := g.Edge("ccdvisit1", "visit1")
	require.True(t, ok)
	assert.Equal(t, []ColumnPair{{"visit_id", "visit_id"}, {"obs_day", "day_obs"}}, reverse.Pairs)

	assert.Equal(t, []string{"visit1", "ccdvisit1"}, g.Tables())
}

func TestNew_LastTemplateWins(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	g := New([]schema.JoinTemplate{
		tmpl("a", []string{"x"}, "b", []string{"x"}),
		tmpl("a", []string{"z"}, "c", []string{"z"}),
		tmpl("b", []string{"y"}, "a", []string{"y"}),
	}, zap.New(core))

	edge, ok := g.Edge("a", "b")
	require.True(t, ok)
	assert.Equal(t, []ColumnPair{{"y", "y"}}, edge.Pairs)

	// The replaced edge keeps its place in the neighbour order.
	path, err := g.Path("a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, path)
	assert.Equal(t, 2, logs.FilterMessage("join template replaces an earlier one for the same tables").Len())
}

func TestPath_FirstDiscoveredPathWins(t *testing.T) {
	// a-b-d and a-c-d are both shortest; b was inserted first.
	g := New([]schema.JoinTemplate{
		tmpl("a", []string{"id"}, "b", []string{"id"}),
		tmpl("a", []string{"id"}, "c", []string{"id"}),
		tmpl("c", []string{"id"}, "d", []string{"id"}),
		tmpl("b", []string{"id"}, "d", []string{"id"}),
	}, nil)

	path, err := g.Path("a", "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, path)
}

func TestPath_Errors(t *testing.T) {
	g := New([]schema.JoinTemplate{
		tmpl("a", []string{"id"}, "b", []string{"id"}),
		tmpl("c", []string{"id"}, "d", []string{"id"}),
	}, nil)

	_, err := g.Path("a", "d")
	require.Error(t, err)
	assert.True(t, IsJoinPath(err))
	assert.Contains(t, err.Error(), "no join path")

	_, err = g.Path("a", "zzz")
	assert.True(t, IsJoinPath(err))
	assert.Contains(t, err.Error(), "zzz")

	path, err := g.Path("zzz", "zzz")
	require.NoError(t, err)
	assert.Equal(t, []string{"zzz"}, path)
}

func TestResolve_SingleTableHasNoSteps(t *testing.T) {
	g := New(nil, nil)

	plan, err := g.Resolve([]string{"exposure", "exposure"})
	require.NoError(t, err)
	assert.Equal(t, "exposure", plan.Base)
	assert.Empty(t, plan.Steps)
	assert.Nil(t, plan.Joins())
}

func TestResolve_AddsIntermediateTable(t *testing.T) {
	s := fixtureSchema(t)
	g := New(s.Joins, nil)

	plan, err := g.Resolve([]string{"exposure", "visit1_quicklook"})
	require.NoError(t, err)

	assert.Equal(t, []string{"exposure", "visit1", "visit1_quicklook"}, plan.Tables())
	assert.Equal(t, []Step{
		{Table: "visit1", On: []querysql.ColumnEquals{{Left: col("exposure", "exposure_id"), Right: col("visit1", "visit_id")}}},
		{Table: "visit1_quicklook", On: []querysql.ColumnEquals{{Left: col("visit1", "visit_id"), Right: col("visit1_quicklook", "visit_id")}}},
	}, plan.Steps)
	require.NoError(t, plan.Check(s))
}

func TestResolve_SharedIntermediateIsJoinedOnce(t *testing.T) {
	s := fixtureSchema(t)
	g := New(s.Joins, nil)

	plan, err := g.Resolve([]string{"exposure", "visit1_quicklook", "ccdvisit1", "visit1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"exposure", "visit1", "visit1_quicklook", "ccdvisit1"}, plan.Tables())
}

func TestResolve_Idempotent(t *testing.T) {
	s := fixtureSchema(t)
	g := New(s.Joins, nil)
	tables := []string{"visit1_quicklook", "exposure", "ccdvisit1"}

	first, err := g.Resolve(tables)
	require.NoError(t, err)
	second, err := g.Resolve(tables)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// conditionSet describes a plan independently of join order and condition
// direction.
func conditionSet(p *Plan) (map[string]bool, map[string]bool) {
	tables := map[string]bool{}
	conds := map[string]bool{}
	for _, t := range p.Tables() {
		tables[t] = true
	}
	for _, s := range p.Steps {
		for _, on := range s.On {
			l, r := on.Left.Qualified(), on.Right.Qualified()
			if r < l {
				l, r = r, l
			}
			conds[l+"="+r] = true
		}
	}
	return tables, conds
}

func TestResolve_OrderIndependent(t *testing.T) {
	s := fixtureSchema(t)
	g := New(s.Joins, nil)

	forward, err := g.Resolve([]string{"exposure", "visit1", "visit1_quicklook"})
	require.NoError(t, err)
	backward, err := g.Resolve([]string{"visit1_quicklook", "visit1", "exposure"})
	require.NoError(t, err)

	ft, fc := conditionSet(forward)
	bt, bc := conditionSet(backward)
	assert.Equal(t, ft, bt)
	assert.Equal(t, fc, bc)
}

func TestResolve_Unreachable(t *testing.T) {
	g := New([]schema.JoinTemplate{
		tmpl("a", []string{"id"}, "b", []string{"id"}),
	}, nil)

	_, err := g.Resolve([]string{"a", "c"})
	assert.True(t, IsJoinPath(err))

	_, err = g.Resolve(nil)
	assert.True(t, IsJoinPath(err))
}

func TestPlanCheck_MissingColumn(t *testing.T) {
	s := fixtureSchema(t)
	g := New([]schema.JoinTemplate{
		tmpl("exposure", []string{"exposure_id"}, "visit1", []string{"exposure_id"}),
	}, nil)

	plan, err := g.Resolve([]string{"exposure", "visit1"})
	require.NoError(t, err)

	err = plan.Check(s)
	require.Error(t, err)

	var je *JoinPathError
	require.ErrorAs(t, err, &je)
	assert.Equal(t, []string{"visit1.exposure_id"}, je.Columns)
	assert.Equal(t, "visit1", je.To)
}

func TestComponents(t *testing.T) {
	g := New([]schema.JoinTemplate{
		tmpl("a", []string{"id"}, "b", []string{"id"}),
		tmpl("c", []string{"id"}, "d", []string{"id"}),
		tmpl("b", []string{"id"}, "e", []string{"id"}),
	}, nil)

	groups := g.Components([]string{"a", "c", "lonely", "b", "d", "e"})
	assert.Equal(t, [][]string{{"a", "b", "e"}, {"c", "d"}, {"lonely"}}, groups)
}

func TestNearest(t *testing.T) {
	s := fixtureSchema(t)
	g := New(s.Joins, nil)

	hasDayObs := func(table string) bool {
		_, err := s.Column(table + ".day_obs")
		return err == nil
	}

	got, ok := g.Nearest("visit1_quicklook", hasDayObs)
	require.True(t, ok)
	assert.Equal(t, "visit1", got)

	got, ok = g.Nearest("exposure", hasDayObs)
	require.True(t, ok)
	assert.Equal(t, "exposure", got)

	_, ok = g.Nearest("visit1", func(string) bool { return false })
	assert.False(t, ok)
}
