package resp

import "fmt"

// Type identifies the wire type of a Reply.
type Type byte

const (
	TypeSimpleString Type = '+'
	TypeError        Type = '-'
	TypeInteger      Type = ':'
	TypeBulkString   Type = '$'
	TypeArray        Type = '*'

	// TypeNil covers both the nil bulk string ($-1) and the nil array (*-1).
	TypeNil Type = '_'
)

func (t Type) String() string {
	switch t {
	case TypeSimpleString:
		return "simple-string"
	case TypeError:
		return "error"
	case TypeInteger:
		return "integer"
	case TypeBulkString:
		return "bulk-string"
	case TypeArray:
		return "array"
	case TypeNil:
		return "nil"
	}
	return fmt.Sprintf("unknown(%c)", byte(t))
}

// Reply is one parsed RESP value. Exactly the fields relevant for the
// reply's Type are populated.
type Reply struct {
	Type  Type
	Str   string   // simple string, error, bulk string
	Int   int64    // integer
	Elems []*Reply // array
}

// IsNil reports whether the reply is a nil bulk string or nil array.
func (r *Reply) IsNil() bool {
	return r.Type == TypeNil
}

// IsError reports whether the server answered with an error reply.
func (r *Reply) IsError() bool {
	return r.Type == TypeError
}

// Text returns the textual payload of the reply. Integers are formatted,
// arrays yield an empty string.
func (r *Reply) Text() string {
	switch r.Type {
	case TypeSimpleString, TypeError, TypeBulkString:
		return r.Str
	case TypeInteger:
		return fmt.Sprintf("%d", r.Int)
	}
	return ""
}

// Err returns the reply's error payload as a Go error, or nil when the
// reply is not an error reply.
func (r *Reply) Err() error {
	if r.Type != TypeError {
		return nil
	}
	return &ServerError{Message: r.Str}
}

// ServerError is an error reply sent by the server ("-ERR ...").
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "resp: server error: " + e.Message
}
