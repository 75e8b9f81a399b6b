package pop3client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/textproto"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/internal/metrics"
)

const (
	// maxSizeHint bounds the message size announced by the server, above
	// which it is ignored.
	maxSizeHint = 1 << 30
	sizeSlop    = 128
)

// MessageInfo is an entry of a LIST response.
type MessageInfo struct {
	Num  int
	Size int64
}

// MessageUID is an entry of a UIDL response.
type MessageUID struct {
	Num int
	UID string
}

// Capa sends a CAPA command and caches the result.
func (c *Client) Capa() (mailwire.CapSet, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.capa()
}

func (c *Client) capa() (mailwire.CapSet, error) {
	resp, body, err := c.multilineCommand("CAPA", sizeSlop)
	if err != nil {
		return nil, err
	}
	if !resp.ok {
		c.caps = nil
		return nil, resp.err(mailwire.KindRejected, "CAPA command failed")
	}
	c.caps = mailwire.ParseCapLines(splitLines(body))
	return c.caps.Copy(), nil
}

// StartTLS sends a STLS command and starts TLS negotiation. Capabilities are
// fetched again once the connection is secured.
//
// Nothing happens if the connection is already encrypted. The connection is
// closed if the TLS handshake fails.
func (c *Client) StartTLS(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stream.IsTLS() {
		return nil
	}
	if !c.state.CanUpgrade() {
		return mailwire.ErrBadState
	}

	err := c.startTLS(ctx)
	metrics.UpgradesTotal.WithLabelValues("stls", metrics.Result(err)).Inc()
	return err
}

func (c *Client) startTLS(ctx context.Context) error {
	resp, err := c.simpleCommand("STLS")
	if err != nil {
		return err
	}
	if !resp.ok {
		return resp.err(mailwire.KindUpgrade, "STLS command failed")
	}

	if err := c.stream.StartTLS(ctx, tlsConfig(c.options.TLSConfig, c.address)); err != nil {
		c.logger.Warn("STLS failed", "error", err)
		c.close()
		return err
	}
	c.state = mailwire.ConnStateSecured
	return c.init()
}

// Stat sends a STAT command. A malformed response yields zero values.
func (c *Client) Stat() (*Status, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.command("STAT")
	if err != nil {
		return nil, err
	}

	status := &Status{}
	fields := strings.Fields(resp.text)
	if len(fields) >= 2 {
		total, err1 := strconv.Atoi(fields[0])
		size, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 == nil && err2 == nil {
			status.Total = total
			status.Size = size
		}
	}
	return status, nil
}

// List sends a LIST command for a single message and returns its size. -1
// is returned if the response is malformed.
func (c *Client) List(msg int) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.command(fmt.Sprintf("LIST %d", msg))
	if err != nil {
		return -1, err
	}
	return listSize(resp.text), nil
}

// ListBody sends a LIST command and returns the raw scan listing.
func (c *Client) ListBody() ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.multilineBody("LIST", sizeSlop)
}

// ListAll sends a LIST command. Malformed lines are skipped.
func (c *Client) ListAll() ([]MessageInfo, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	body, err := c.multilineBody("LIST", sizeSlop)
	if err != nil {
		return nil, err
	}

	var l []MessageInfo
	for _, line := range splitLines(body) {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		num, err1 := strconv.Atoi(fields[0])
		size, err2 := strconv.ParseInt(fields[1], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		l = append(l, MessageInfo{Num: num, Size: size})
	}
	return l, nil
}

// Retr sends a RETR command and returns the message.
//
// size is the expected size of the message, if known. Otherwise, the size
// is fetched with a pipelined LIST command when pipelining is enabled, or
// guessed from the RETR response.
func (c *Client) Retr(msg, size int) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if size <= 0 && c.pipelining {
		return c.retrPipelined(msg)
	}

	resp, err := c.command(fmt.Sprintf("RETR %d", msg))
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = sizeHint(resp.text)
	}
	return c.readBody(size)
}

func (c *Client) retrPipelined(msg int) ([]byte, error) {
	list := fmt.Sprintf("LIST %d", msg)
	retr := fmt.Sprintf("RETR %d", msg)

	start := time.Now()
	if err := c.writeLine(list); err != nil {
		return nil, err
	}
	if err := c.writeLine(retr); err != nil {
		return nil, err
	}

	// Both responses must be read to stay in sync
	size := 0
	resp, err := c.readResponse()
	observe(list, resp, err, start)
	if err != nil && !mailwire.IsKind(err, mailwire.KindSyntax) {
		return nil, err
	}
	if err == nil && resp.ok {
		if n := listSize(resp.text); n >= 0 && n <= maxSizeHint {
			c.logger.Debug("pipeline message size", "size", n)
			size = n + sizeSlop
		}
	}

	resp, err = c.readResponse()
	observe(retr, resp, err, start)
	if err != nil {
		return nil, err
	}
	if !resp.ok {
		return nil, resp.err(mailwire.KindRejected, "RETR command failed")
	}
	return c.readBody(size)
}

// RetrTo sends a RETR command and streams the message to w.
//
// The whole message is always read from the connection. If writing to w
// fails, the write error is returned once the message has been consumed.
func (c *Client) RetrTo(msg int, w io.Writer) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, err := c.command(fmt.Sprintf("RETR %d", msg)); err != nil {
		return err
	}

	dr := newDotReader(c.stream)
	buf := make([]byte, 4096)
	var werr error
	for {
		n, err := dr.Read(buf)
		if n > 0 && werr == nil {
			if _, werr = w.Write(buf[:n]); werr != nil {
				c.logger.Debug("failed to stream message", "error", werr)
			}
		}
		if err == io.EOF {
			break
		} else if err != nil {
			return c.fail(err)
		}
	}
	return werr
}

// Top sends a TOP command and returns the header of the message followed by
// n lines of its body.
func (c *Client) Top(msg, n int) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.multilineBody(fmt.Sprintf("TOP %d %d", msg, n), 0)
}

// TopHeader fetches the header of a message with a TOP command.
func (c *Client) TopHeader(msg int) (textproto.Header, error) {
	b, err := c.Top(msg, 0)
	if err != nil {
		return textproto.Header{}, err
	}
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(b)))
	if err != nil {
		return textproto.Header{}, &mailwire.Error{Kind: mailwire.KindSyntax, Text: "malformed message header", Err: err}
	}
	return h, nil
}

// Dele sends a DELE command.
func (c *Client) Dele(msg int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, err := c.command(fmt.Sprintf("DELE %d", msg))
	return err
}

// UIDL sends a UIDL command for a single message and returns its unique ID.
func (c *Client) UIDL(msg int) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	resp, err := c.command(fmt.Sprintf("UIDL %d", msg))
	if err != nil {
		return "", err
	}
	_, uid, ok := strings.Cut(resp.text, " ")
	if !ok || uid == "" {
		return "", &mailwire.Error{Kind: mailwire.KindSyntax, Text: "malformed UIDL response: " + resp.text}
	}
	return uid, nil
}

// UIDLAll sends a UIDL command and returns the unique IDs of all messages.
func (c *Client) UIDLAll() ([]MessageUID, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	body, err := c.multilineBody("UIDL", sizeSlop)
	if err != nil {
		return nil, err
	}

	var l []MessageUID
	for _, line := range splitLines(body) {
		num, uid, ok := strings.Cut(line, " ")
		if !ok || uid == "" {
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil || n <= 0 {
			continue
		}
		l = append(l, MessageUID{Num: n, UID: uid})
	}
	return l, nil
}

// Noop sends a NOOP command.
func (c *Client) Noop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, err := c.command("NOOP")
	return err
}

// Rset sends a RSET command.
func (c *Client) Rset() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, err := c.command("RSET")
	return err
}

// Quit sends a QUIT command and closes the connection, even if the command
// fails.
func (c *Client) Quit() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	defer c.close()

	_, err := c.command("QUIT")
	return err
}

func (c *Client) multilineBody(cmd string, size int) ([]byte, error) {
	resp, body, err := c.multilineCommand(cmd, size)
	if err != nil {
		return nil, err
	}
	if !resp.ok {
		return nil, resp.err(mailwire.KindRejected, fmt.Sprintf("%v command failed", verb(cmd)))
	}
	return body, nil
}

// listSize parses the size out of a "msg size" scan listing. -1 is returned
// if it's malformed.
func listSize(text string) int {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return -1
	}
	size, err := strconv.Atoi(fields[1])
	if err != nil || size < 0 {
		return -1
	}
	return size
}

// sizeHint parses a "NNN octets" RETR response. Zero is returned if there's
// no usable hint.
func sizeHint(text string) int {
	fields := strings.Fields(text)
	if len(fields) < 2 || fields[1] != "octets" {
		return 0
	}
	size, err := strconv.Atoi(fields[0])
	if err != nil || size < 0 || size > maxSizeHint {
		return 0
	}
	return size + sizeSlop
}

func splitLines(b []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
