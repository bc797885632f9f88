package schema

import (
	_ "embed"
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var documentCUE string

// Document definitions in schema.cue.
const (
	defSchema = "#Schema"
	defJoins  = "#Joins"
)

// document is the YAML shape of a schema file. Felis schemas carry many
// more keys; unknown keys are ignored.
type document struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tables      []tableDoc `yaml:"tables"`
	Joins       []joinDoc  `yaml:"joins"`
}

type tableDoc struct {
	Name         string      `yaml:"name"`
	Description  string      `yaml:"description"`
	IndexColumns []string    `yaml:"index_columns"`
	Columns      []columnDoc `yaml:"columns"`
}

type columnDoc struct {
	Name        string `yaml:"name"`
	Datatype    string `yaml:"datatype"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
}

type joinDoc struct {
	Type    string         `yaml:"type"`
	Matches orderedMatches `yaml:"matches"`
}

type joinsDocument struct {
	Joins []joinDoc `yaml:"joins"`
}

// orderedMatches keeps the key order of the "matches" mapping; the first key
// becomes the left side of the template.
type orderedMatches []JoinSide

func (m *orderedMatches) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matches must be a mapping of table to columns", node.Line)
	}
	out := make(orderedMatches, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var side JoinSide
		if err := node.Content[i].Decode(&side.Table); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&side.Columns); err != nil {
			return err
		}
		out = append(out, side)
	}
	*m = out
	return nil
}

func (d joinDoc) template() (JoinTemplate, error) {
	if len(d.Matches) != 2 {
		return JoinTemplate{}, fmt.Errorf("inner joins must have exactly two tables: got %d", len(d.Matches))
	}
	return JoinTemplate{Type: d.Type, Left: d.Matches[0], Right: d.Matches[1]}, nil
}

// Load reads a schema document from fs and builds the schema. Additional
// join templates (usually from a separate joins file) are appended to the
// ones declared in the document.
func Load(fs afero.Fs, path string, extraJoins []JoinTemplate, log *zap.Logger) (*Schema, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	s, err := Parse(data, extraJoins, log)
	if err != nil {
		var de *DocumentError
		if errors.As(err, &de) && de.Path == "" {
			de.Path = path
		}
		return nil, err
	}
	return s, nil
}

// Parse validates and decodes a schema document.
func Parse(data []byte, extraJoins []JoinTemplate, log *zap.Logger) (*Schema, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := validateDocument(data, defSchema); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &DocumentError{Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}

	tables := make([]*Table, 0, len(doc.Tables))
	for _, td := range doc.Tables {
		columns := make([]*Column, 0, len(td.Columns))
		for _, cd := range td.Columns {
			dt, err := ParseDataType(cd.Datatype)
			if err != nil {
				log.Warn("unsupported column datatype",
					zap.String("table", td.Name),
					zap.String("column", cd.Name),
					zap.String("datatype", cd.Datatype),
				)
				dt = TypeOther
			}
			columns = append(columns, &Column{
				Name:        cd.Name,
				DataType:    dt,
				Description: cd.Description,
				Unit:        cd.Unit,
			})
		}
		t, err := NewTable(td.Name, columns, td.IndexColumns)
		if err != nil {
			return nil, &DocumentError{Message: err.Error()}
		}
		t.Description = td.Description
		tables = append(tables, t)
	}

	joins := make([]JoinTemplate, 0, len(doc.Joins)+len(extraJoins))
	for i, jd := range doc.Joins {
		tmpl, err := jd.template()
		if err != nil {
			return nil, &DocumentError{Message: fmt.Sprintf("joins[%d]: %v", i, err)}
		}
		joins = append(joins, tmpl)
	}
	joins = append(joins, extraJoins...)

	return New(doc.Name, tables, joins, log)
}

// LoadJoins reads a standalone joins document ("joins: [...]").
func LoadJoins(fs afero.Fs, path string) ([]JoinTemplate, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read joins file: %w", err)
	}
	joins, err := ParseJoins(data)
	if err != nil {
		var de *DocumentError
		if errors.As(err, &de) && de.Path == "" {
			de.Path = path
		}
		return nil, err
	}
	return joins, nil
}

// ParseJoins validates and decodes a standalone joins document.
func ParseJoins(data []byte) ([]JoinTemplate, error) {
	if err := validateDocument(data, defJoins); err != nil {
		return nil, err
	}

	var doc joinsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &DocumentError{Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}

	joins := make([]JoinTemplate, 0, len(doc.Joins))
	for i, jd := range doc.Joins {
		tmpl, err := jd.template()
		if err != nil {
			return nil, &DocumentError{Message: fmt.Sprintf("joins[%d]: %v", i, err)}
		}
		if err := tmpl.validate(); err != nil {
			return nil, &DocumentError{Message: fmt.Sprintf("joins[%d]: %v", i, err)}
		}
		joins = append(joins, tmpl)
	}
	return joins, nil
}

// validateDocument checks a YAML document against a definition in schema.cue.
func validateDocument(data []byte, definition string) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &DocumentError{Message: fmt.Sprintf("failed to parse YAML: %v", err)}
	}
	if raw == nil {
		return &DocumentError{Message: "empty document"}
	}

	ctx := cuecontext.New()
	defs := ctx.CompileString(documentCUE)
	if err := defs.Err(); err != nil {
		return fmt.Errorf("compile document definitions: %w", err)
	}

	value := ctx.Encode(raw)
	if err := value.Err(); err != nil {
		return &DocumentError{Message: formatCUEError(err)}
	}

	unified := defs.LookupPath(cue.ParsePath(definition)).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &DocumentError{Message: formatCUEError(err)}
	}
	return nil
}

// formatCUEError keeps the first CUE error, which carries the offending path.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}
