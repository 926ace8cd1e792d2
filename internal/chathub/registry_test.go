package chathub_test

import (
	"fmt"
	"sync"
	"testing"

	"chatline/backend/internal/chathub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterTwice(t *testing.T) {
	r := chathub.NewRegistry()
	c := newMockClient("c1")

	require.NoError(t, r.Register(c, 0))
	assert.ErrorIs(t, r.Register(c, 0), chathub.ErrAlreadyRegistered)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_IdentifyOnce(t *testing.T) {
	r := chathub.NewRegistry()
	require.NoError(t, r.Register(newMockClient("c1"), 0))

	require.NoError(t, r.Identify("c1", 7))
	assert.ErrorIs(t, r.Identify("c1", 8), chathub.ErrAlreadyIdentified)

	user, ok := r.UserOf("c1")
	assert.True(t, ok)
	assert.Equal(t, uint(7), user)
	assert.Equal(t, []string{"c1"}, r.ConnectionsForUser(7))
	assert.Empty(t, r.ConnectionsForUser(8))

	assert.ErrorIs(t, r.Identify("missing", 7), chathub.ErrConnNotFound)
}

func TestRegistry_JoinAndLeaveRoom(t *testing.T) {
	r := chathub.NewRegistry()
	require.NoError(t, r.Register(newMockClient("c1"), 0))
	require.NoError(t, r.Register(newMockClient("c2"), 0))

	require.NoError(t, r.JoinRoom("c1", 5))
	require.NoError(t, r.JoinRoom("c1", 5))
	require.NoError(t, r.JoinRoom("c2", 5))
	assert.Equal(t, []string{"c1", "c2"}, r.ConnectionsForRoom(5))

	require.NoError(t, r.LeaveRoom("c1", 5))
	require.NoError(t, r.LeaveRoom("c1", 9))
	assert.Equal(t, []string{"c2"}, r.ConnectionsForRoom(5))

	assert.ErrorIs(t, r.JoinRoom("missing", 5), chathub.ErrConnNotFound)
}

func TestRegistry_UnregisterRemovesEverywhere(t *testing.T) {
	r := chathub.NewRegistry()
	c1 := newMockClient("c1")
	c2 := newMockClient("c2")
	require.NoError(t, r.Register(c1, 0))
	require.NoError(t, r.Register(c2, 0))
	require.NoError(t, r.Identify("c1", 7))
	require.NoError(t, r.Identify("c2", 7))
	require.NoError(t, r.JoinRoom("c1", 5))

	dep, ok := r.Unregister("c1")
	require.True(t, ok)
	assert.Equal(t, chathub.Departure{UserID: 7, Identified: true, WasLast: false}, dep)
	assert.True(t, c1.IsClosed())
	assert.Empty(t, r.ConnectionsForRoom(5))
	assert.Equal(t, []string{"c2"}, r.ConnectionsForUser(7))

	dep, ok = r.Unregister("c2")
	require.True(t, ok)
	assert.True(t, dep.WasLast)

	_, ok = r.Unregister("c2")
	assert.False(t, ok)
	assert.Zero(t, r.Count())
}

func TestRegistry_UnregisterAnonymous(t *testing.T) {
	r := chathub.NewRegistry()
	require.NoError(t, r.Register(newMockClient("c1"), 0))

	dep, ok := r.Unregister("c1")

	require.True(t, ok)
	assert.False(t, dep.Identified)
	assert.False(t, dep.Counted)
}

func TestRegistry_MarkCounted(t *testing.T) {
	r := chathub.NewRegistry()
	require.NoError(t, r.Register(newMockClient("c1"), 0))
	require.NoError(t, r.Identify("c1", 7))

	assert.True(t, r.MarkCounted("c1"))
	dep, _ := r.Unregister("c1")
	assert.True(t, dep.Counted)

	assert.False(t, r.MarkCounted("c1"))
}

func TestRegistry_Send(t *testing.T) {
	r := chathub.NewRegistry()
	c := newMockClientWithBuffer("c1", 1)
	require.NoError(t, r.Register(c, 0))

	require.NoError(t, r.Send("c1", []byte(`{"event":"a"}`)))
	assert.ErrorIs(t, r.Send("c1", []byte(`{"event":"b"}`)), chathub.ErrSendBufferFull)
	assert.ErrorIs(t, r.Send("missing", nil), chathub.ErrConnNotFound)

	assert.Equal(t, []string{"a"}, c.Events(t))
}

func TestRegistry_SendRacesUnregister(t *testing.T) {
	r := chathub.NewRegistry()
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, r.Register(newMockClientWithBuffer(fmt.Sprintf("c%d", i), 4), 0))
	}

	// A send on a closed channel would panic.
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("c%d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = r.Send(id, []byte(`{"event":"x"}`))
			}
		}()
		go func() {
			defer wg.Done()
			r.Unregister(id)
		}()
	}
	wg.Wait()

	assert.Zero(t, r.Count())
}
