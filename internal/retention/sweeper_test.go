package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"huru-chat/internal/mocks"
	"huru-chat/internal/repositories"
)

func TestExpiredAllReadAndAged(t *testing.T) {
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	old := cutoff.Add(-time.Hour)

	candidate := repositories.SweepCandidate{
		MessageID:  1,
		Recipients: []int{2, 3},
		ReadAt:     map[int]time.Time{2: old, 3: old.Add(time.Minute)},
	}

	assert.True(t, Expired(candidate, cutoff))
}

func TestExpiredEarliestReadDrivesTheAgeCheck(t *testing.T) {
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	// One recipient read long ago, the other just now. The earliest read
	// is what ages the message, so it is already past retention.
	candidate := repositories.SweepCandidate{
		MessageID:  1,
		Recipients: []int{2, 3},
		ReadAt: map[int]time.Time{
			2: cutoff.Add(-time.Hour),
			3: time.Now(),
		},
	}

	assert.True(t, Expired(candidate, cutoff))
}

func TestNotExpiredWhenPartiallyRead(t *testing.T) {
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	candidate := repositories.SweepCandidate{
		MessageID:  1,
		Recipients: []int{2, 3},
		ReadAt:     map[int]time.Time{2: cutoff.Add(-time.Hour)},
	}

	assert.False(t, Expired(candidate, cutoff))
}

func TestNotExpiredWhenReadRecently(t *testing.T) {
	cutoff := time.Now().Add(-30 * 24 * time.Hour)

	candidate := repositories.SweepCandidate{
		MessageID:  1,
		Recipients: []int{2},
		ReadAt:     map[int]time.Time{2: time.Now()},
	}

	assert.False(t, Expired(candidate, cutoff))
}

func TestNotExpiredWithoutRecipients(t *testing.T) {
	cutoff := time.Now()

	candidate := repositories.SweepCandidate{MessageID: 1}

	assert.False(t, Expired(candidate, cutoff))
}

func TestSweepDeletesOnlyExpiredCandidates(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	sweeper := &Sweeper{messages: messageRepo, window: 30 * 24 * time.Hour}

	old := time.Now().Add(-31 * 24 * time.Hour)
	candidates := []repositories.SweepCandidate{
		{MessageID: 1, Recipients: []int{2}, ReadAt: map[int]time.Time{2: old}},
		{MessageID: 2, Recipients: []int{2}, ReadAt: map[int]time.Time{2: time.Now()}},
		{MessageID: 3, Recipients: []int{2, 3}, ReadAt: map[int]time.Time{2: old}},
	}

	messageRepo.On("ListSweepCandidates", mock.Anything).Return(candidates, nil).Once()
	messageRepo.On("HardDelete", mock.Anything, 1).Return(nil).Once()

	deleted, err := sweeper.sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	messageRepo.AssertExpectations(t)
}

func TestSweepStopsOnCancellation(t *testing.T) {
	messageRepo := new(mocks.MessageRepositoryMock)
	sweeper := &Sweeper{messages: messageRepo, window: 30 * 24 * time.Hour}

	old := time.Now().Add(-31 * 24 * time.Hour)
	candidates := []repositories.SweepCandidate{
		{MessageID: 1, Recipients: []int{2}, ReadAt: map[int]time.Time{2: old}},
	}

	messageRepo.On("ListSweepCandidates", mock.Anything).Return(candidates, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deleted, err := sweeper.sweep(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, deleted)

	messageRepo.AssertNotCalled(t, "HardDelete", mock.Anything, mock.Anything)
}

func TestNewSweeperRejectsInvalidCron(t *testing.T) {
	_, err := NewSweeper(nil, new(mocks.MessageRepositoryMock), "not a cron", time.Hour)
	require.Error(t, err)
}
