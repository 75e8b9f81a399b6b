package pop3client

import (
	"io"
	"strings"

	"github.com/emersion/go-mailwire"
)

// response is a POP3 status line.
type response struct {
	ok   bool
	cont bool
	// text is everything after the first space, if any
	text string
}

func parseResponse(line string) (*response, error) {
	resp := &response{}
	switch {
	case strings.HasPrefix(line, "+OK"):
		resp.ok = true
	case strings.HasPrefix(line, "+ "), line == "+":
		resp.ok = true
		resp.cont = true
	case strings.HasPrefix(line, "-ERR"):
		resp.ok = false
	default:
		return nil, &mailwire.Error{Kind: mailwire.KindSyntax, Text: "unexpected response: " + line}
	}
	if i := strings.IndexByte(line, ' '); i >= 0 {
		resp.text = line[i+1:]
	}
	return resp, nil
}

func (resp *response) status() string {
	switch {
	case resp.cont:
		return "+"
	case resp.ok:
		return "OK"
	default:
		return "ERR"
	}
}

// err converts a negative response into an error. def is used when the
// server didn't send any text.
func (resp *response) err(kind mailwire.ErrorKind, def string) error {
	text := resp.text
	if text == "" {
		text = def
	}
	return &mailwire.Error{Kind: kind, Status: mailwire.StatusNO, Text: text}
}

const (
	stateBeginLine = iota // at the beginning of a line
	stateDot              // read a dot at the beginning of a line
	stateData             // in the middle of a line
	stateEOF              // read the terminating ".\r\n"
)

// dotReader reads a dot-terminated multi-line body. A leading dot is removed
// from each line, line endings are left untouched.
type dotReader struct {
	r     io.ByteReader
	state int
}

func newDotReader(r io.ByteReader) *dotReader {
	return &dotReader{r: r, state: stateBeginLine}
}

func (dr *dotReader) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) && dr.state != stateEOF {
		c, err := dr.r.ReadByte()
		if err != nil {
			return n, droppedErr(err)
		}

		switch dr.state {
		case stateBeginLine:
			if c == '.' {
				dr.state = stateDot
				continue
			}
		case stateDot:
			if c == '\r' {
				// The terminator, the LF follows
				if _, err := dr.r.ReadByte(); err != nil {
					return n, droppedErr(err)
				}
				dr.state = stateEOF
				continue
			}
		}

		if c == '\n' {
			dr.state = stateBeginLine
		} else {
			dr.state = stateData
		}
		b[n] = c
		n++
	}
	if dr.state == stateEOF {
		return n, io.EOF
	}
	return n, nil
}

func droppedErr(err error) error {
	if mailwire.IsKind(err, mailwire.KindTransport) {
		return err
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return mailwire.TransportError("connection dropped by server", err)
}
