package twin

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartwake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	sent    []map[string]interface{}
	fail    bool
	handler func(models.TwinPatch)
}

func (f *fakeTransport) SendReported(_ context.Context, props map[string]interface{}) error {
	if f.fail {
		return errors.New("network down")
	}
	f.sent = append(f.sent, props)
	return nil
}

func (f *fakeTransport) OnDesiredChange(handler func(models.TwinPatch)) error {
	f.handler = handler
	return nil
}

// fakeApplier stores cloud_enabled and reports what changed
type fakeApplier struct {
	cloudEnabled bool
}

func (a *fakeApplier) ApplyDesired(_ context.Context, patch models.TwinPatch, _ time.Time) map[string]interface{} {
	changed := map[string]interface{}{}
	if patch.CloudEnabled != nil && *patch.CloudEnabled != a.cloudEnabled {
		a.cloudEnabled = *patch.CloudEnabled
		changed[PropCloudEnabled] = a.cloudEnabled
	}
	return changed
}

func (a *fakeApplier) ReportedState(_ context.Context, _ time.Time) map[string]interface{} {
	return map[string]interface{}{
		PropCloudEnabled: a.cloudEnabled,
		PropAlarmEnabled: false,
	}
}

func newTestSync(tr Transport) *Sync {
	return NewSync(tr, NewCircuitBreaker(DefaultBreakerConfig(), zap.NewNop()), time.Second, zap.NewNop())
}

func cloudPatch(enabled bool) models.TwinPatch {
	return models.TwinPatch{CloudEnabled: &enabled}
}

func TestSync_ReportAddsLastSync(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSync(tr)

	result := s.Report(context.Background(), map[string]interface{}{"alarm_state": "armed"}, t0)
	assert.Equal(t, ReportSent, result)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "armed", tr.sent[0]["alarm_state"])
	assert.Equal(t, "2024-03-10T06:00:00Z", tr.sent[0][PropLastSync])
	assert.Equal(t, 0, s.Pending())
}

func TestSync_FailedSendRetriedOnFlush(t *testing.T) {
	tr := &fakeTransport{fail: true}
	s := newTestSync(tr)
	ctx := context.Background()

	assert.Equal(t, ReportDeferred, s.Report(ctx, map[string]interface{}{"a": 1}, t0))
	assert.Equal(t, ReportDeferred, s.Report(ctx, map[string]interface{}{"b": 2}, t0))
	assert.Equal(t, 2, s.Pending(), "failed reports are merged")

	tr.fail = false
	assert.Equal(t, ReportSent, s.Flush(ctx, t0.Add(time.Minute)))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, 1, tr.sent[0]["a"])
	assert.Equal(t, 2, tr.sent[0]["b"])

	assert.Equal(t, ReportIdle, s.Flush(ctx, t0.Add(2*time.Minute)))
}

func TestSync_InitialDocumentSendsFullState(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSync(tr)
	applier := &fakeApplier{}

	// first document changes nothing but still produces one full report
	result := s.HandleDesired(context.Background(), models.TwinPatch{}, applier, t0)
	assert.Equal(t, ReportSent, result)
	require.Len(t, tr.sent, 1)
	assert.Contains(t, tr.sent[0], PropAlarmEnabled)
	assert.Contains(t, tr.sent[0], PropCloudEnabled)
}

func TestSync_NoOpPatchIsNotAcked(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSync(tr)
	applier := &fakeApplier{}
	ctx := context.Background()

	s.HandleDesired(ctx, models.TwinPatch{}, applier, t0)

	assert.Equal(t, ReportSent, s.HandleDesired(ctx, cloudPatch(true), applier, t0))
	assert.Equal(t, ReportIdle, s.HandleDesired(ctx, cloudPatch(true), applier, t0))
	assert.Len(t, tr.sent, 2)
	assert.Equal(t, true, tr.sent[1][PropCloudEnabled])
	assert.NotContains(t, tr.sent[1], PropAlarmEnabled, "acks carry only changed properties")
}

// A remote echo toggling the same property forever is bounded to the breaker threshold per window.
func TestSync_EchoStormIsBounded(t *testing.T) {
	tr := &fakeTransport{}
	s := newTestSync(tr)
	applier := &fakeApplier{}
	ctx := context.Background()

	results := map[ReportResult]int{}
	for i := 0; i < 50; i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		results[s.HandleDesired(ctx, cloudPatch(i%2 == 0), applier, now)]++
	}

	assert.Equal(t, 10, results[ReportSent])
	assert.Equal(t, 40, results[ReportSuppressed])
	assert.Len(t, tr.sent, 10)
	assert.Equal(t, 0, s.Pending(), "suppressed reports are discarded")
	assert.True(t, s.BreakerState().Tripped)

	// next window
	assert.Equal(t, ReportSent, s.HandleDesired(ctx, cloudPatch(!applier.cloudEnabled), applier, t0.Add(61*time.Second)))
	assert.False(t, s.BreakerState().Tripped)
}
