package wire

import (
	"fmt"

	"github.com/goccy/go-json"
)

// ResponseType is the "t" field of a server response.
type ResponseType int

// Response types.
const (
	SuccessAtom     ResponseType = 1
	SuccessSequence ResponseType = 2
	SuccessPartial  ResponseType = 3
	WaitComplete    ResponseType = 4
	ServerInfo      ResponseType = 5
	ClientError     ResponseType = 16
	CompileError    ResponseType = 17
	RuntimeError    ResponseType = 18
)

func (t ResponseType) String() string {
	switch t {
	case SuccessAtom:
		return "SUCCESS_ATOM"
	case SuccessSequence:
		return "SUCCESS_SEQUENCE"
	case SuccessPartial:
		return "SUCCESS_PARTIAL"
	case WaitComplete:
		return "WAIT_COMPLETE"
	case ServerInfo:
		return "SERVER_INFO"
	case ClientError:
		return "CLIENT_ERROR"
	case CompileError:
		return "COMPILE_ERROR"
	case RuntimeError:
		return "RUNTIME_ERROR"
	}
	return fmt.Sprintf("ResponseType(%d)", int(t))
}

// IsError reports whether the response carries a server error.
func (t ResponseType) IsError() bool {
	return t == ClientError || t == CompileError || t == RuntimeError
}

// Note flags attached to feed responses.
const (
	NoteSequenceFeed   = 1
	NoteAtomFeed       = 2
	NoteOrderByLimit   = 3
	NoteUnionedFeed    = 4
	NoteIncludesStates = 5
)

// Response is one server reply to a query token.
type Response struct {
	Type      ResponseType      `json:"t"`
	Results   []json.RawMessage `json:"r"`
	Backtrace []any             `json:"b,omitempty"`
	Profile   any               `json:"p,omitempty"`
	Notes     []int             `json:"n,omitempty"`
	ErrorType int               `json:"e,omitempty"`
}

// DecodeResponse parses a response payload.
func DecodeResponse(b []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, protocolError("malformed response: %v", err)
	}
	if r.Type == 0 {
		return nil, protocolError("response without type")
	}
	return &r, nil
}

// ErrorMessage returns the server's message for an error response.
func (r *Response) ErrorMessage() string {
	if len(r.Results) == 0 {
		return r.Type.String()
	}
	var msg string
	if err := json.Unmarshal(r.Results[0], &msg); err != nil {
		return string(r.Results[0])
	}
	return msg
}

// HasNote reports whether the response carries note n.
func (r *Response) HasNote(n int) bool {
	for _, v := range r.Notes {
		if v == n {
			return true
		}
	}
	return false
}

// EncodeResponse builds a response payload. Used by transports that emulate
// the server.
func EncodeResponse(t ResponseType, results []json.RawMessage, notes ...int) ([]byte, error) {
	if results == nil {
		results = []json.RawMessage{}
	}
	return json.Marshal(Response{Type: t, Results: results, Notes: notes})
}
