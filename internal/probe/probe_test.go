package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shii9/reconkit/internal/target"
)

type stubProber struct {
	kind    Kind
	timeout time.Duration
	fn      func(ctx context.Context, t target.Target, timeout time.Duration) Result
}

func (s *stubProber) Kind() Kind         { return s.kind }
func (s *stubProber) Defaults() Defaults { return Defaults{Timeout: s.timeout} }
func (s *stubProber) Probe(ctx context.Context, t target.Target, timeout time.Duration) Result {
	return s.fn(ctx, t, timeout)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	reg.Register(&stubProber{kind: KindTLS})
	reg.Register(&stubProber{kind: KindTCP})

	p, err := reg.Get(KindTCP)
	require.NoError(t, err)
	assert.Equal(t, KindTCP, p.Kind())

	_, err = reg.Get("smtp")
	require.ErrorIs(t, err, ErrUnknownKind)

	assert.Equal(t, []Kind{KindTCP, KindTLS}, reg.Kinds())
	assert.Equal(t, KindWhois, ParseKind("  WHOIS "))
}

func TestExecuteInvalidTargetSkipsProbe(t *testing.T) {
	called := false
	p := &stubProber{kind: KindTCP, fn: func(context.Context, target.Target, time.Duration) Result {
		called = true
		return Result{}
	}}

	tg := target.ParseLine("no-port", target.ShapeHostPort, 0)
	res := Execute(context.Background(), p, tg, time.Second)

	assert.False(t, called)
	assert.Equal(t, StatusInvalid, res.Status)
	assert.Contains(t, res.Error, "Invalid Format")
	assert.Nil(t, res.LatencyMs)
}

func TestExecuteUsesDefaultTimeout(t *testing.T) {
	var got time.Duration
	p := &stubProber{kind: KindTCP, timeout: 2 * time.Second, fn: func(_ context.Context, tg target.Target, timeout time.Duration) Result {
		got = timeout
		return Success(KindTCP, tg, StatusOpen, time.Millisecond, PortInfo{Port: tg.Port, State: "open"})
	}}

	tg := target.ParseLine("127.0.0.1:80", target.ShapeHostPort, 0)
	res := Execute(context.Background(), p, tg, 0)

	assert.Equal(t, 2*time.Second, got)
	assert.Equal(t, StatusOpen, res.Status)
	assert.Equal(t, KindTCP, res.Metadata.ProbeKind())
}

func TestExecuteRecoversPanic(t *testing.T) {
	p := &stubProber{kind: KindTCP, fn: func(context.Context, target.Target, time.Duration) Result {
		panic("boom")
	}}

	tg := target.ParseLine("127.0.0.1:80", target.ShapeHostPort, 0)
	res := Execute(context.Background(), p, tg, time.Second)

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "boom")
	assert.Equal(t, tg, res.Target)
}

func TestExecuteNormalisesResult(t *testing.T) {
	p := &stubProber{kind: KindHeaders, fn: func(context.Context, target.Target, time.Duration) Result {
		return Result{Status: StatusDead, Metadata: HeaderReport{Score: 10}}
	}}

	tg := target.ParseLine("https://example.com", target.ShapeURL, 0)
	res := Execute(context.Background(), p, tg, time.Second)
	assert.Equal(t, StatusDead, res.Status)
	assert.Nil(t, res.Metadata, "metadata only on success")
	assert.Equal(t, KindHeaders, res.Kind)

	p.fn = func(context.Context, target.Target, time.Duration) Result { return Result{Status: StatusScanning} }
	res = Execute(context.Background(), p, tg, time.Second)
	assert.Equal(t, StatusError, res.Status)
}

func TestStatus(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusScanning.Terminal())
	for _, s := range []Status{StatusOpen, StatusClosed, StatusActive, StatusDead, StatusTimeout, StatusError, StatusNotFound, StatusInvalid} {
		assert.True(t, s.Terminal(), s)
	}
	assert.True(t, StatusOpen.Succeeded())
	assert.True(t, StatusActive.Succeeded())
	assert.False(t, StatusNotFound.Succeeded())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("dial: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(&net.OpError{Op: "dial", Err: timeoutErr{}}))
	assert.False(t, IsTimeout(errors.New("connection refused")))
	assert.False(t, IsTimeout(nil))

	assert.Equal(t, "timeout", ErrorText(context.DeadlineExceeded))
	assert.Equal(t, "dial: boom", ErrorText(&net.OpError{Op: "dial", Err: errors.New("boom")}))
}
