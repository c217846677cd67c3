package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title+"|"+message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendInfo_EventFilter(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"execution"}, testLogger())
	ctx := context.Background()

	require.NoError(t, n.SendInfo(ctx, "opportunity", "Opp", "detected"))
	assert.Empty(t, s.sent)

	require.NoError(t, n.SendInfo(ctx, "execution", "Filled", "both legs"))
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "Filled")
}

func TestSendInfo_EmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.SendInfo(context.Background(), "anything", "T", "m"))
	assert.Len(t, s.sent, 1)
}

func TestSendCritical_BypassesFilter(t *testing.T) {
	s := &fakeSender{name: "test"}
	n := NewNotifier([]Sender{s}, []string{"execution"}, testLogger())

	require.NoError(t, n.SendCritical(context.Background(), "Breaker tripped", "asymmetric"))
	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0], "CRITICAL: Breaker tripped")
}

func TestDispatch_PartialFailureStillDelivers(t *testing.T) {
	broken := &fakeSender{name: "telegram", err: errors.New("429 too many requests")}
	healthy := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.SendCritical(context.Background(), "T", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, healthy.sent, 1)
}

func TestNoSendersIsNoOp(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.SendCritical(context.Background(), "T", "m"))
}
