package repository

import (
	"context"
	"testing"

	"smartwake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReadingRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryReadingRepository(2)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Append(ctx, models.SleepReading{ID: id, LocalQuality: models.QualityFair}))
	}

	recent, err := repo.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 2, "limit trims the oldest")
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)

	err = repo.UpdateCloudResult(ctx, "b", models.CloudResult{Quality: models.QualityGood, Confidence: 0.8})
	require.NoError(t, err)
	recent, _ = repo.Recent(ctx, 2)
	assert.Equal(t, models.QualityGood, recent[1].FinalQuality())
	assert.True(t, recent[1].Synced)

	err = repo.UpdateCloudResult(ctx, "a", models.CloudResult{Quality: models.QualityGood})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryAlarmEventRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAlarmEventRepository()

	require.NoError(t, repo.Save(ctx, models.AlarmEvent{ID: "1", Type: models.EventSet}))
	require.NoError(t, repo.Save(ctx, models.AlarmEvent{ID: "2", Type: models.EventTriggered}))

	events, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTriggered, events[0].Type)

	events, _ = repo.Recent(ctx, 0)
	assert.Len(t, events, 2)
}
