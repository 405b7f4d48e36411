package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Limits on peer-supplied sizes, so a malformed stream cannot recurse
// without limit or drive a huge allocation. maxBulkLen matches the
// server-side proto-max-bulk-len default of 512MB.
const (
	maxArrayDepth = 32
	maxBulkLen    = 512 << 20
	maxArrayLen   = 1 << 20
)

var (
	// ErrProtocol is wrapped by all framing violations.
	ErrProtocol = errors.New("resp: protocol error")

	errDepth = fmt.Errorf("%w: array nesting too deep", ErrProtocol)
)

// ReadReply parses one complete reply from r. It blocks until a full
// reply is available or the underlying reader fails. I/O errors are
// returned as-is so callers can distinguish a dead connection
// (io.EOF, net errors) from a framing violation (ErrProtocol).
func ReadReply(r *bufio.Reader) (*Reply, error) {
	return readReply(r, 0)
}

func readReply(r *bufio.Reader, depth int) (*Reply, error) {
	if depth > maxArrayDepth {
		return nil, errDepth
	}
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty line", ErrProtocol)
	}

	payload := string(line[1:])
	switch Type(line[0]) {
	case TypeSimpleString:
		return &Reply{Type: TypeSimpleString, Str: payload}, nil

	case TypeError:
		return &Reply{Type: TypeError, Str: payload}, nil

	case TypeInteger:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad integer %q", ErrProtocol, payload)
		}
		return &Reply{Type: TypeInteger, Int: n}, nil

	case TypeBulkString:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad bulk length %q", ErrProtocol, payload)
		}
		if n < 0 {
			return &Reply{Type: TypeNil}, nil
		}
		if n > maxBulkLen {
			return nil, fmt.Errorf("%w: bulk length %d exceeds limit", ErrProtocol, n)
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return nil, fmt.Errorf("%w: bulk string not CRLF terminated", ErrProtocol)
		}
		return &Reply{Type: TypeBulkString, Str: string(buf[:n])}, nil

	case TypeArray:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad array length %q", ErrProtocol, payload)
		}
		if n < 0 {
			return &Reply{Type: TypeNil}, nil
		}
		if n > maxArrayLen {
			return nil, fmt.Errorf("%w: array length %d exceeds limit", ErrProtocol, n)
		}
		elems := make([]*Reply, 0, n)
		for i := int64(0); i < n; i++ {
			elem, err := readReply(r, depth+1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		}
		return &Reply{Type: TypeArray, Elems: elems}, nil
	}

	return nil, fmt.Errorf("%w: unknown type byte %q", ErrProtocol, line[0])
}

// readLine reads one CRLF-terminated line, excluding the terminator.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("%w: line not CRLF terminated", ErrProtocol)
	}
	return line[:len(line)-2], nil
}
