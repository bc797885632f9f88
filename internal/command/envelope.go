package command

import "encoding/json"

// Request is an incoming command.
type Request struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
}

// Response is the reply to a command.
type Response struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// ResponseTypeError is the type of every error reply.
const ResponseTypeError = "error"

// ErrorContent is the content of an error reply.
type ErrorContent struct {
	Error       string `json:"error"`
	Description string `json:"description"`
}

// Error categories reported in ErrorContent.Error.
const (
	ErrorParsing   = "parsing error"
	ErrorExecution = "execution error"
)

func errorResponse(category, description string) Response {
	return Response{
		Type:    ResponseTypeError,
		Content: ErrorContent{Error: category, Description: description},
	}
}
