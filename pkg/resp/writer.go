package resp

import (
	"bufio"
	"errors"
	"strconv"
)

var crlf = []byte("\r\n")

// ErrEmptyCommand is returned when a command with no arguments is written.
var ErrEmptyCommand = errors.New("resp: empty command")

// WriteCommand encodes a client command as an array of bulk strings, the
// only request form the protocol accepts from clients, and writes it to w.
// The caller owns flushing.
func WriteCommand(w *bufio.Writer, args []string) error {
	if len(args) == 0 {
		return ErrEmptyCommand
	}
	if err := w.WriteByte(byte(TypeArray)); err != nil {
		return err
	}
	if _, err := w.WriteString(strconv.Itoa(len(args))); err != nil {
		return err
	}
	if _, err := w.Write(crlf); err != nil {
		return err
	}
	for _, arg := range args {
		if err := w.WriteByte(byte(TypeBulkString)); err != nil {
			return err
		}
		if _, err := w.WriteString(strconv.Itoa(len(arg))); err != nil {
			return err
		}
		if _, err := w.Write(crlf); err != nil {
			return err
		}
		if _, err := w.WriteString(arg); err != nil {
			return err
		}
		if _, err := w.Write(crlf); err != nil {
			return err
		}
	}
	return nil
}
