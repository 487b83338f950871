package interceptors

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuditPublisher struct {
	mock.Mock
}

func (m *mockAuditPublisher) PublishAudit(ctx context.Context, record AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func TestAuditHandler(t *testing.T) {
	t.Run("publishes a record per call", func(t *testing.T) {
		publisher := &mockAuditPublisher{}
		publisher.On("PublishAudit", mock.Anything, mock.MatchedBy(func(r AuditRecord) bool {
			return r.Method == "echo" && r.Target == "ServiceA" && r.ArgCount == 2 && r.Success && r.InvocationID != ""
		})).Return(nil).Once()

		target := New(newTestService(&bytes.Buffer{}), NewAuditHandler(publisher, nil), "echo")
		result, err := target.Invoke(context.Background(), "echo", 1, 2)

		require.NoError(t, err)
		assert.Equal(t, []any{1, 2}, result)
		publisher.AssertExpectations(t)
	})

	t.Run("records failures and keeps the error", func(t *testing.T) {
		publisher := &mockAuditPublisher{}
		publisher.On("PublishAudit", mock.Anything, mock.MatchedBy(func(r AuditRecord) bool {
			return !r.Success && r.Error == "boom"
		})).Return(nil).Once()

		h := NewAuditHandler(publisher, nil)
		_, err := h.Handle(context.Background(), testInvocation("fail"), failThunk(errBoom))

		assert.Same(t, errBoom, err)
		publisher.AssertExpectations(t)
	})

	t.Run("publish failure does not change the result", func(t *testing.T) {
		var logs bytes.Buffer
		publisher := &mockAuditPublisher{}
		publisher.On("PublishAudit", mock.Anything, mock.Anything).Return(errors.New("broker down"))

		h := NewAuditHandler(publisher, slog.New(slog.NewTextHandler(&logs, nil)))
		result, err := h.Handle(context.Background(), testInvocation("m"), okThunk("v"))

		require.NoError(t, err)
		assert.Equal(t, "v", result)
		assert.Contains(t, logs.String(), "failed to publish audit record")
	})

	t.Run("measures duration", func(t *testing.T) {
		publisher := &mockAuditPublisher{}
		var got AuditRecord
		publisher.On("PublishAudit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			got = args.Get(1).(AuditRecord)
		}).Return(nil)

		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		ticks := []time.Time{start, start.Add(250 * time.Millisecond)}
		h := NewAuditHandler(publisher, nil)
		h.now = func() time.Time {
			now := ticks[0]
			ticks = ticks[1:]
			return now
		}

		_, err := h.Handle(context.Background(), testInvocation("m"), okThunk(nil))
		require.NoError(t, err)
		assert.Equal(t, start, got.StartedAt)
		assert.Equal(t, 250*time.Millisecond, got.Duration)
	})
}
