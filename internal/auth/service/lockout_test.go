package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdvanceLockout(t *testing.T) {
	now := time.Now().UTC()

	t.Run("success resets counters", func(t *testing.T) {
		lock := now.Add(30 * time.Minute)
		attempts, until := AdvanceLockout(4, &lock, now, true)
		require.Zero(t, attempts)
		require.Nil(t, until)
	})

	t.Run("failures accumulate below the threshold", func(t *testing.T) {
		for i := range MaxLoginAttempts - 1 {
			attempts, until := AdvanceLockout(i, nil, now, false)
			require.Equal(t, i+1, attempts)
			require.Nil(t, until)
		}
	})

	t.Run("fifth failure locks for an hour", func(t *testing.T) {
		attempts, until := AdvanceLockout(4, nil, now, false)
		require.Equal(t, 5, attempts)
		require.NotNil(t, until)
		require.Equal(t, now.Add(LockoutDuration), *until)
	})

	t.Run("failures during an active lock do not extend it", func(t *testing.T) {
		lock := now.Add(10 * time.Minute)
		attempts, until := AdvanceLockout(5, &lock, now, false)
		require.Equal(t, 5, attempts)
		require.Equal(t, &lock, until)
	})

	t.Run("failure after an expired lock restarts at one", func(t *testing.T) {
		lock := now.Add(-time.Minute)
		attempts, until := AdvanceLockout(5, &lock, now, false)
		require.Equal(t, 1, attempts)
		require.Nil(t, until)
	})
}
