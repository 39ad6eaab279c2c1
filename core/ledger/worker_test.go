package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerTracker_Exclusive(t *testing.T) {
	tracker := NewWorkerTracker(nil)
	id := ID(RegistryCrafted, "metal", "bar")
	alice := Actor{UserID: "u1", UserName: "alice"}
	bob := Actor{UserID: "u2", UserName: "bob"}

	first, err := tracker.Start(id, alice)
	require.NoError(t, err)

	again, err := tracker.Start(id, alice)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = tracker.Start(id, bob)
	var assigned *AlreadyAssignedError
	require.ErrorAs(t, err, &assigned)
	assert.Equal(t, "alice", assigned.Holder.UserName)

	err = tracker.Stop(id, &bob)
	require.ErrorAs(t, err, &assigned)

	require.NoError(t, tracker.Stop(id, &alice))
	_, held := tracker.AssignmentOf(id)
	assert.False(t, held)

	_, err = tracker.Start(id, bob)
	assert.NoError(t, err)
}

func TestWorkerTracker_AdminReset(t *testing.T) {
	tracker := NewWorkerTracker(nil)
	id := ID(RegistryRaw, "metal", "ore")

	_, err := tracker.Start(id, Actor{UserID: "u1"})
	require.NoError(t, err)

	require.NoError(t, tracker.Stop(id, nil))
	_, held := tracker.AssignmentOf(id)
	assert.False(t, held)

	assert.NoError(t, tracker.Stop(id, nil))
}

func TestWorkerTracker_ConcurrentStart(t *testing.T) {
	tracker := NewWorkerTracker(nil)
	id := ID(RegistryCrafted, "metal", "bar")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := tracker.Start(id, Actor{UserID: fmt.Sprintf("u%d", i)}); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Len(t, tracker.Assignments(), 1)
}

func TestWorkerTracker_StartAll(t *testing.T) {
	clock := Clock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	tracker := NewWorkerTracker(clock)
	alice := Actor{UserID: "u1", UserName: "alice"}
	bob := Actor{UserID: "u2", UserName: "bob"}

	done := Entry{Identity: ID(RegistryRaw, "metal", "ore"), Quantity: 5, Required: 5}
	taken := Entry{Identity: ID(RegistryRaw, "metal", "coal"), Quantity: 0, Required: 5}
	free := Entry{Identity: ID(RegistryRaw, "metal", "tin"), Quantity: 1, Required: 5}

	_, err := tracker.Start(taken.Identity, bob)
	require.NoError(t, err)

	report := tracker.StartAll([]Entry{done, taken, free}, alice)
	assert.Equal(t, []Identity{free.Identity}, report.Started)
	assert.Equal(t, []Identity{done.Identity}, report.AlreadyComplete)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, taken.Identity, report.Conflicts[0].Entry)
	assert.Equal(t, "bob", report.Conflicts[0].Holder.UserName)

	_, held := tracker.AssignmentOf(done.Identity)
	assert.False(t, held)
}

func TestWorkerTracker_RekeyAndRelease(t *testing.T) {
	tracker := NewWorkerTracker(nil)
	from := ID(RegistryRaw, "metal", "ore")
	to := from.Renamed("iron ore")

	_, err := tracker.Start(from, Actor{UserID: "u1"})
	require.NoError(t, err)

	tracker.Rekey(from, to)
	_, held := tracker.AssignmentOf(from)
	assert.False(t, held)
	a, held := tracker.AssignmentOf(to)
	assert.True(t, held)
	assert.Equal(t, "u1", a.UserID)

	tracker.Release(to)
	assert.Empty(t, tracker.Assignments())
}
