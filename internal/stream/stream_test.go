package stream_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emersion/go-mailwire"
	"github.com/emersion/go-mailwire/internal/stream"
	"github.com/emersion/go-mailwire/internal/testutil"
)

type syncBuilder struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *syncBuilder) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *syncBuilder) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}

func TestStream_Trace(t *testing.T) {
	conn, srv := testutil.Pipe(t)
	var debug syncBuilder
	s := stream.New(conn, &stream.Options{DebugWriter: &debug})

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Send("+OK hello")
		srv.Expect("USER joe")
		srv.Expect("PASS secret")
		srv.Send("+OK")
	}()

	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "+OK hello", line)

	s.WriteString("USER joe\r\n")
	require.NoError(t, s.Flush())

	s.SuspendTrace()
	assert.False(t, s.Tracing())
	s.WriteString("PASS secret\r\n")
	require.NoError(t, s.Flush())
	s.ResumeTrace()
	assert.True(t, s.Tracing())

	line, err = s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "+OK", line)
	<-done

	assert.Equal(t, "+OK hello\r\nUSER joe\r\n+OK\r\n", debug.String())
}

func TestStream_StartTLS(t *testing.T) {
	serverConfig, clientConfig := testutil.TLSConfigs(t)
	conn, srv := testutil.Pipe(t)
	s := stream.New(conn, nil)
	assert.False(t, s.IsTLS())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.StartTLS(serverConfig); err != nil {
			errCh <- err
			return
		}
		srv.Send("+OK secure")
		errCh <- nil
	}()

	require.NoError(t, s.StartTLS(context.Background(), clientConfig))
	assert.True(t, s.IsTLS())
	_, ok := s.TLSConnectionState()
	assert.True(t, ok)

	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "+OK secure", line)
	require.NoError(t, <-errCh)

	// Already secure
	assert.NoError(t, s.StartTLS(context.Background(), clientConfig))
}

func TestStream_StartTLSBuffered(t *testing.T) {
	_, clientConfig := testutil.TLSConfigs(t)
	conn, srv := testutil.Pipe(t)
	s := stream.New(conn, nil)

	go srv.Write("+OK\r\n* injected\r\n")

	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "+OK", line)
	require.Greater(t, s.Buffered(), 0)

	err = s.StartTLS(context.Background(), clientConfig)
	assert.True(t, mailwire.IsKind(err, mailwire.KindUpgrade), "got %v", err)
	assert.False(t, s.IsTLS())
}

func TestStream_Compress(t *testing.T) {
	conn, srv := testutil.Pipe(t)
	s := stream.New(conn, nil)
	require.NoError(t, s.Compress(-1))
	assert.True(t, s.IsCompressed())
	srv.Compress()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Expect("A2 NOOP")
		srv.Send("A2 OK " + strings.Repeat("z", 1000))
	}()

	s.WriteString("A2 NOOP\r\n")
	require.NoError(t, s.Flush())
	line, err := s.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "A2 OK "+strings.Repeat("z", 1000), line)
	<-done
}

func TestStream_Close(t *testing.T) {
	conn, _ := testutil.Pipe(t)
	s := stream.New(conn, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.ReadLine()
		errCh <- err
	}()

	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	err := <-errCh
	assert.True(t, mailwire.IsKind(err, mailwire.KindTransport), "got %v", err)
	assert.NoError(t, s.Close())
}

func TestStream_CloseCompressed(t *testing.T) {
	conn, srv := testutil.Pipe(t)
	s := stream.New(conn, nil)
	require.NoError(t, s.Compress(0))
	srv.Compress()

	errCh := make(chan error, 1)
	go func() {
		_, err := s.ReadLine()
		errCh <- err
	}()

	// Close must not wait for the blocked read
	require.NoError(t, s.Close())
	err := <-errCh
	assert.True(t, mailwire.IsKind(err, mailwire.KindTransport), "got %v", err)
}
