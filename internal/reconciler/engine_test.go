package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartwake/internal/models"
	"smartwake/internal/predictor"
	"smartwake/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPredictor mock predictor
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, features models.Features) (predictor.Prediction, error) {
	args := m.Called(ctx, features)
	return args.Get(0).(predictor.Prediction), args.Error(1)
}

func (m *MockPredictor) IsAvailable() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockSink mock telemetry sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) UploadReading(ctx context.Context, reading models.SleepReading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

var testNow = time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC)

func features(restlessness float64) models.Features {
	values := make(map[string]float64, len(models.RequiredFeatures))
	for _, name := range models.RequiredFeatures {
		values[name] = 1
	}
	values["restlessness"] = restlessness
	return models.Features{Values: values, Origin: models.OriginMonitor}
}

func localPrediction(q models.Quality, score float64) predictor.Prediction {
	return predictor.Prediction{Quality: q, Score: score, Confidence: score / 100}
}

func cloudPrediction(q models.Quality) predictor.Prediction {
	return predictor.Prediction{
		Quality:       q,
		Score:         80,
		Confidence:    0.8,
		Probabilities: map[models.Quality]float64{q: 0.8, models.QualityPoor: 0.2},
	}
}

type fixture struct {
	engine  *Engine
	local   *MockPredictor
	cloud   *MockPredictor
	sink    *MockSink
	history *repository.MemoryReadingRepository
	queue   *repository.RedisSyncQueue
}

func setup(t *testing.T, cloudEnabled bool) *fixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		local:   &MockPredictor{},
		cloud:   &MockPredictor{},
		sink:    &MockSink{},
		history: repository.NewMemoryReadingRepository(0),
		queue:   repository.NewRedisSyncQueue(client, "test:sync", zap.NewNop()),
	}
	f.engine = NewEngine(f.local, f.cloud, f.history, f.queue, f.sink, cloudEnabled, time.Second, 0, zap.NewNop())
	return f
}

func (f *fixture) pending(t *testing.T) int64 {
	n, err := f.engine.PendingCount(context.Background())
	require.NoError(t, err)
	return n
}

func TestReconcile_CloudWins(t *testing.T) {
	f := setup(t, true)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityGood, 74), nil)
	f.cloud.On("IsAvailable").Return(true)
	f.cloud.On("Predict", mock.Anything, mock.Anything).Return(cloudPrediction(models.QualityFair), nil)

	reading, err := f.engine.Reconcile(context.Background(), features(0.1), testNow)
	require.NoError(t, err)

	assert.Equal(t, models.QualityGood, reading.LocalQuality)
	require.NotNil(t, reading.Cloud)
	assert.Equal(t, models.QualityFair, reading.FinalQuality())
	assert.Equal(t, 0.8, reading.Cloud.Confidence)
	assert.NotEmpty(t, reading.Cloud.Probabilities)
	assert.True(t, reading.Synced)
	assert.Equal(t, testNow, reading.Timestamp)
	assert.Equal(t, int64(0), f.pending(t))

	history, _ := f.history.Recent(context.Background(), 10)
	require.Len(t, history, 1)
	assert.Equal(t, reading.ID, history[0].ID)
}

func TestReconcile_CloudDisabledQueuesLocal(t *testing.T) {
	f := setup(t, false)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityExcellent, 90), nil)

	reading, err := f.engine.Reconcile(context.Background(), features(0.1), testNow)
	require.NoError(t, err)

	assert.Nil(t, reading.Cloud)
	assert.Equal(t, models.QualityExcellent, reading.FinalQuality())
	assert.False(t, reading.Synced)
	assert.Equal(t, int64(1), f.pending(t))
	f.cloud.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestReconcile_ManualReadingNotQueued(t *testing.T) {
	f := setup(t, false)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityFair, 60), nil)

	in := features(0.3)
	in.Origin = models.OriginManual
	_, err := f.engine.Reconcile(context.Background(), in, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.pending(t))
}

func TestReconcile_CloudUnavailableSkipsCall(t *testing.T) {
	f := setup(t, true)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityPoor, 40), nil)
	f.cloud.On("IsAvailable").Return(false)

	reading, err := f.engine.Reconcile(context.Background(), features(0.6), testNow)
	require.NoError(t, err)
	assert.Equal(t, models.QualityPoor, reading.FinalQuality())
	assert.Equal(t, int64(1), f.pending(t))
	f.cloud.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestReconcile_InvalidFeatures(t *testing.T) {
	f := setup(t, true)

	_, err := f.engine.Reconcile(context.Background(), models.Features{Values: map[string]float64{"restlessness": 1}}, testNow)
	assert.ErrorIs(t, err, models.ErrInvalidFeatures)
	f.local.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
	assert.Equal(t, int64(0), f.pending(t))
}

func TestDrainQueue_Empty(t *testing.T) {
	f := setup(t, true)

	n, err := f.engine.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.engine.DrainQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// Three readings while the cloud is down, then the cloud comes back.
func TestScenario_OfflineThenReconnect(t *testing.T) {
	ctx := context.Background()
	f := setup(t, true)

	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityFair, 60), nil).Once()
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityGood, 75), nil).Once()
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityPoor, 45), nil).Once()
	f.cloud.On("IsAvailable").Return(true)
	f.cloud.On("Predict", mock.Anything, mock.Anything).Return(predictor.Prediction{}, predictor.ErrUnavailable).Times(3)

	var finals []models.Quality
	for i := 0; i < 3; i++ {
		reading, err := f.engine.Reconcile(ctx, features(float64(i)), testNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Nil(t, reading.Cloud)
		finals = append(finals, reading.FinalQuality())
	}
	assert.Equal(t, []models.Quality{models.QualityFair, models.QualityGood, models.QualityPoor}, finals)
	assert.Equal(t, int64(3), f.pending(t))

	// reconnect
	f.cloud.On("Predict", mock.Anything, mock.Anything).Return(cloudPrediction(models.QualityGood), nil)
	var uploaded []float64
	f.sink.On("UploadReading", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		r := args.Get(1).(models.SleepReading)
		uploaded = append(uploaded, r.Features.Values["restlessness"])
		assert.True(t, r.Synced)
	}).Return(nil)

	n, err := f.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(0), f.pending(t))
	assert.Equal(t, []float64{0, 1, 2}, uploaded, "drained oldest first")

	history, _ := f.history.Recent(ctx, 10)
	require.Len(t, history, 3)
	for _, r := range history {
		assert.True(t, r.Synced)
		assert.Equal(t, models.QualityGood, r.FinalQuality())
	}
}

func TestDrainQueue_StopsOnFirstFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityFair, 60), nil)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Reconcile(ctx, features(float64(i)), testNow)
		require.NoError(t, err)
	}

	f.cloud.On("IsAvailable").Return(true)
	f.cloud.On("Predict", mock.Anything, mock.Anything).Return(cloudPrediction(models.QualityGood), nil).Once()
	f.cloud.On("Predict", mock.Anything, mock.Anything).Return(predictor.Prediction{}, predictor.ErrUnavailable)
	f.sink.On("UploadReading", mock.Anything, mock.Anything).Return(nil)

	n, err := f.engine.DrainQueue(ctx)
	assert.ErrorIs(t, err, ErrDrainPartial)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(2), f.pending(t))

	head, err := f.queue.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, head.Features.Values["restlessness"], "remaining entries keep their order")
}

func TestDrainQueue_SinkFailureKeepsEntry(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityFair, 60), nil)
	_, err := f.engine.Reconcile(ctx, features(0), testNow)
	require.NoError(t, err)

	f.cloud.On("IsAvailable").Return(true)
	f.cloud.On("Predict", mock.Anything, mock.Anything).Return(cloudPrediction(models.QualityGood), nil)
	f.sink.On("UploadReading", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	n, err := f.engine.DrainQueue(ctx)
	assert.ErrorIs(t, err, ErrDrainPartial)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(1), f.pending(t))
}

// A backlog behind a slow cloud is spread over several sync ticks.
func TestSyncPending_StopsWhenBudgetSpent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	f.engine.drainBudget = 50 * time.Millisecond
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityFair, 60), nil)

	for i := 0; i < 10; i++ {
		_, err := f.engine.Reconcile(ctx, features(float64(i)), testNow)
		require.NoError(t, err)
	}

	f.cloud.On("IsAvailable").Return(true)
	f.cloud.On("Predict", mock.Anything, mock.Anything).
		Return(cloudPrediction(models.QualityGood), nil).
		After(20 * time.Millisecond)
	f.sink.On("UploadReading", mock.Anything, mock.Anything).Return(nil)

	n, err := f.engine.SetCloudEnabled(ctx, true)

	assert.ErrorIs(t, err, ErrDrainPartial)
	assert.GreaterOrEqual(t, n, 1)
	assert.Less(t, n, 10)
	assert.Equal(t, int64(10-n), f.pending(t))

	head, err := f.queue.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(n), head.Features.Values["restlessness"], "drain resumes at the oldest entry")

	for i := 0; i < 10 && f.pending(t) > 0; i++ {
		_, err = f.engine.SyncPending(ctx)
		if err != nil {
			assert.ErrorIs(t, err, ErrDrainPartial)
		}
	}
	assert.Equal(t, int64(0), f.pending(t))
}

func TestSetCloudEnabled_DrainsOnEnable(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityFair, 60), nil)
	_, err := f.engine.Reconcile(ctx, features(0), testNow)
	require.NoError(t, err)

	f.cloud.On("IsAvailable").Return(true)
	f.cloud.On("Predict", mock.Anything, mock.Anything).Return(cloudPrediction(models.QualityFair), nil)
	f.sink.On("UploadReading", mock.Anything, mock.Anything).Return(nil)

	n, err := f.engine.SetCloudEnabled(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.engine.CloudEnabled())

	// no transition, no drain
	n, err = f.engine.SetCloudEnabled(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.engine.SetCloudEnabled(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, f.engine.CloudEnabled())
}

func TestSyncPending_SkipsWhenDisabledOrUnavailable(t *testing.T) {
	ctx := context.Background()
	f := setup(t, false)
	f.local.On("Predict", mock.Anything, mock.Anything).Return(localPrediction(models.QualityFair, 60), nil)
	_, err := f.engine.Reconcile(ctx, features(0), testNow)
	require.NoError(t, err)

	n, err := f.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.engine.cloudEnabled = true
	f.cloud.On("IsAvailable").Return(false)
	n, err = f.engine.SyncPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(1), f.pending(t))
}
