// Package protocol implements the framed request/response+event wire protocol
// spoken between the gateway and its trusted clients. All frames are UTF-8
// JSON text; there are no binary frames.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Stable protocol error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeForbidden      = -32001
	CodeRateLimited    = -32002
)

// Error is a protocol-level error carried in a response frame.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// NewError builds a protocol error with the given stable code.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Request is a client-initiated frame. The id must be unique per connection
// until the matching response has been sent.
type Request struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Response answers exactly one request. Exactly one of Result or Err is set.
type Response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Err    *Error `json:"error,omitempty"`
}

// Event is a server-initiated frame; it carries no id.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ParseRequest decodes raw bytes into a Request. Invalid JSON yields
// CodeParseError; JSON that is not shaped like a request yields
// CodeInvalidRequest with every schema issue joined by ", ".
func ParseRequest(raw []byte) (*Request, *Error) {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Method json.RawMessage `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, NewError(CodeParseError, "invalid JSON: "+err.Error())
	}

	var issues []string
	req := &Request{}

	switch {
	case len(probe.ID) == 0:
		issues = append(issues, "id is required")
	default:
		if err := json.Unmarshal(probe.ID, &req.ID); err != nil {
			issues = append(issues, "id must be a string")
		} else if req.ID == "" {
			issues = append(issues, "id must be a non-empty string")
		}
	}

	switch {
	case len(probe.Method) == 0:
		issues = append(issues, "method is required")
	default:
		if err := json.Unmarshal(probe.Method, &req.Method); err != nil {
			issues = append(issues, "method must be a string")
		} else if req.Method == "" {
			issues = append(issues, "method must be a non-empty string")
		}
	}

	if len(probe.Params) > 0 && string(probe.Params) != "null" {
		if err := json.Unmarshal(probe.Params, &req.Params); err != nil {
			issues = append(issues, "params must be an object")
		}
	}

	if len(issues) > 0 {
		return nil, NewError(CodeInvalidRequest, strings.Join(issues, ", "))
	}
	return req, nil
}

// BuildResponse builds a success response for the given request id.
func BuildResponse(id string, result any) *Response {
	return &Response{ID: id, Result: result}
}

// BuildErrorResponse builds an error response for the given request id.
func BuildErrorResponse(id string, code int, message string) *Response {
	return &Response{ID: id, Err: NewError(code, message)}
}

// BuildEvent builds a server-initiated event frame.
func BuildEvent(event string, data any) *Event {
	return &Event{Event: event, Data: data}
}

// SerializeFrame encodes a Request, Response, or Event as JSON text.
func SerializeFrame(frame any) ([]byte, error) {
	switch frame.(type) {
	case *Request, *Response, *Event, Request, Response, Event:
		return json.Marshal(frame)
	default:
		return nil, fmt.Errorf("unsupported frame type %T", frame)
	}
}

// Frame is a client-side decoded frame: exactly one of Response or Event is
// non-nil.
type Frame struct {
	Response *Response
	Event    *Event
}

// ParseFrame decodes a server-sent frame, distinguishing responses from
// events. Used by clients and by the test suite.
func ParseFrame(raw []byte) (*Frame, error) {
	var probe struct {
		ID    json.RawMessage `json:"id"`
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if len(probe.Event) > 0 {
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
		return &Frame{Event: &ev}, nil
	}
	if len(probe.ID) > 0 {
		var res Response
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, err
		}
		return &Frame{Response: &res}, nil
	}
	return nil, fmt.Errorf("frame is neither a response nor an event")
}
