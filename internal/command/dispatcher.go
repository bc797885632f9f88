package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/database"
)

// parameters is implemented by every command's parameter struct.
type parameters interface {
	validate() error
}

// definition is a registered command.
type definition struct {
	responseType string
	run          func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (any, error)
}

// register adds a command whose parameters decode into P.
func register[P any, PP interface {
	*P
	parameters
}](commands map[string]definition, name, responseType string, run func(context.Context, *Dispatcher, PP) (any, error)) {
	commands[name] = definition{
		responseType: responseType,
		run: func(ctx context.Context, d *Dispatcher, raw json.RawMessage) (any, error) {
			params := PP(new(P))
			if err := decodeParameters(name, raw, params); err != nil {
				return nil, err
			}
			content, err := run(ctx, d, params)
			if err != nil {
				return nil, &ExecutionError{Command: name, Err: err}
			}
			return content, nil
		},
	}
}

// decodeParameters decodes raw strictly into params and checks that the
// required parameters are present.
func decodeParameters(name string, raw json.RawMessage, params parameters) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return &ParseError{Reason: fmt.Sprintf("No parameters given for command '%s'", name)}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return &ParseError{Reason: fmt.Sprintf("Invalid parameters for command '%s': %v", name, err)}
	}
	if err := params.validate(); err != nil {
		return &ParseError{Reason: fmt.Sprintf("Invalid parameters for command '%s': %v", name, err)}
	}
	return nil
}

// Dispatcher routes commands to their handlers. It is safe for concurrent
// use: the connections it holds are re-entrant and the command table is
// never modified after construction.
type Dispatcher struct {
	databases map[string]*database.Connection
	commands  map[string]definition
	log       *zap.Logger
}

// NewDispatcher creates a dispatcher serving the given databases, keyed by
// the name clients use in the "database" parameter.
func NewDispatcher(databases map[string]*database.Connection, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		databases: databases,
		commands:  make(map[string]definition),
		log:       log,
	}
	registerDatabaseCommands(d.commands)
	return d
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Databases returns the configured database names, sorted.
func (d *Dispatcher) Databases() []string {
	names := make([]string, 0, len(d.databases))
	for name := range d.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) database(name string) (*database.Connection, error) {
	conn, ok := d.databases[name]
	if !ok {
		return nil, &UnknownDatabaseError{Database: name}
	}
	return conn, nil
}

// Execute runs one raw message and returns the encoded reply. It never
// fails: every error is reported to the client as an error envelope.
func (d *Dispatcher) Execute(ctx context.Context, message []byte) []byte {
	resp := d.Handle(ctx, message)
	out, err := json.Marshal(resp)
	if err != nil {
		d.log.Error("failed to encode reply", zap.String("type", resp.Type), zap.Error(err))
		out, _ = json.Marshal(errorResponse(ErrorExecution,
			fmt.Sprintf("'%v' error while encoding the reply", err)))
	}
	return out
}

// Handle runs one raw message and returns the reply.
func (d *Dispatcher) Handle(ctx context.Context, message []byte) Response {
	var req Request
	if err := json.Unmarshal(message, &req); err != nil {
		return d.failure("", &ParseError{Reason: fmt.Sprintf("Could not decode command: %v", err)})
	}
	resp, err := d.dispatch(ctx, req)
	if err != nil {
		return d.failure(req.Name, err)
	}
	return resp
}

// Run executes a command given its decoded parameters. Errors are returned
// rather than encoded.
func (d *Dispatcher) Run(ctx context.Context, name string, params any) (Response, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Response{}, &ParseError{Reason: fmt.Sprintf("Could not encode parameters: %v", err)}
	}
	return d.dispatch(ctx, Request{Name: name, Parameters: raw})
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (Response, error) {
	if req.Name == "" {
		return Response{}, &ParseError{Reason: "No command 'name' given"}
	}
	def, ok := d.commands[req.Name]
	if !ok {
		return Response{}, &ParseError{Reason: fmt.Sprintf("Unrecognized command '%s'", req.Name)}
	}

	start := time.Now()
	content, err := def.run(ctx, d, req.Parameters)
	if err != nil {
		return Response{}, err
	}
	d.log.Debug("command complete",
		zap.String("command", req.Name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Response{Type: def.responseType, Content: content}, nil
}

func (d *Dispatcher) failure(name string, err error) Response {
	var pe *ParseError
	if errors.As(err, &pe) {
		d.log.Warn("could not parse command", zap.String("command", name), zap.String("reason", pe.Reason))
		return errorResponse(ErrorParsing, pe.Description())
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		d.log.Error("command failed", zap.String("command", name), zap.Error(ee.Err))
		return errorResponse(ErrorExecution, ee.Description())
	}
	d.log.Error("command failed", zap.String("command", name), zap.Error(err))
	return errorResponse(ErrorExecution, fmt.Sprintf("'%v' error while executing command '%s'", err, name))
}
