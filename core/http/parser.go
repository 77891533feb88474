package http

import (
	"errors"
	"strconv"
	"strings"

	"github.com/searchktools/reactor-server/core/buffer"
)

// The parser walks a buffer iterator without consuming: on success the
// caller consumes it.BytesRead() from the buffer; on ErrIncomplete nothing
// is consumed and the caller waits for more input.
var (
	// ErrIncomplete means the buffered bytes don't hold a full record
	// yet; feed more input and retry.
	ErrIncomplete = errors.New("http: need more input")

	// ErrMalformed means the input can never parse; the connection
	// should be dropped.
	ErrMalformed = errors.New("http: malformed input")
)

// ParseRequest parses one request into req:
//
//	METHOD SP "/" ADDRESS SP VERSION CRLF
//	header lines ending in CRLF
//	CRLF
//
// Header lines are read and discarded.
func ParseRequest(it *buffer.Iterator, req *Request) error {
	req.Clear()

	if err := parseToken(it, &req.Method); err != nil {
		return err
	}
	if err := skipByte(it, ' '); err != nil {
		return err
	}
	if err := skipByte(it, '/'); err != nil {
		return err
	}
	if err := parseToken(it, &req.Address); err != nil {
		return err
	}
	if err := skipByte(it, ' '); err != nil {
		return err
	}
	if err := parseToken(it, &req.Version); err != nil {
		return err
	}
	if err := skipCRLF(it); err != nil {
		return err
	}

	for {
		var line string
		if err := parseLine(it, &line); err != nil {
			return err
		}
		if line == "" {
			return nil
		}
	}
}

// ParseResponse parses one response into resp. The body length is taken from
// the Content-Length header; absent that header the body is empty.
func ParseResponse(it *buffer.Iterator, resp *Response) error {
	resp.Clear()

	if err := parseLine(it, &resp.StatusLine); err != nil {
		return err
	}

	contentSize := 0
	for {
		var line string
		if err := parseLine(it, &line); err != nil {
			return err
		}
		if line == "" {
			break
		}

		if rest, ok := strings.CutPrefix(line, "Content-Length:"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				contentSize = n
			}
		}

		resp.HeaderRemainder += line
	}

	if it.BytesTotal()-it.BytesRead() < contentSize {
		return ErrIncomplete
	}

	for ; contentSize > 0; contentSize-- {
		resp.Body = append(resp.Body, it.Byte())
		it.Next()
	}

	return nil
}

// parseToken reads bytes until a space or carriage return. Running out of
// input before the delimiter means the record is still incomplete.
func parseToken(it *buffer.Iterator, dst *string) error {
	if it.EOB() {
		return ErrIncomplete
	}
	var b []byte
	for !it.EOB() {
		c := it.Byte()
		if c == ' ' || c == '\r' {
			break
		}
		b = append(b, c)
		it.Next()
	}
	if it.EOB() {
		return ErrIncomplete
	}
	*dst = string(b)
	return nil
}

// parseLine reads bytes up to and including a CRLF; dst gets the line
// without the terminator.
func parseLine(it *buffer.Iterator, dst *string) error {
	if it.EOB() {
		return ErrIncomplete
	}
	var b []byte
	for !it.EOB() {
		c := it.Byte()
		if c == '\r' {
			it.Next()
			if it.EOB() {
				return ErrIncomplete
			}
			if it.Byte() != '\n' {
				return ErrMalformed
			}
			it.Next()
			*dst = string(b)
			return nil
		}
		b = append(b, c)
		it.Next()
	}
	return ErrIncomplete
}

func skipByte(it *buffer.Iterator, want byte) error {
	if it.EOB() {
		return ErrIncomplete
	}
	if it.Byte() != want {
		return ErrMalformed
	}
	it.Next()
	return nil
}

func skipCRLF(it *buffer.Iterator) error {
	if it.EOB() {
		return ErrIncomplete
	}
	first := it.Byte()
	it.Next()
	if it.EOB() {
		return ErrIncomplete
	}
	second := it.Byte()
	if first != '\r' || second != '\n' {
		return ErrMalformed
	}
	it.Next()
	return nil
}
