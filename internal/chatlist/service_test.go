package chatlist_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/chatlist"
	"chatline/backend/internal/models"
	"chatline/backend/internal/storage"
	"chatline/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsurePrivateRoom_Concurrent(t *testing.T) {
	s := storagetest.NewService(t)
	alice := storagetest.SeedUser(t, s, "alice")
	bob := storagetest.SeedUser(t, s, "bob")

	// Two services stand in for two processes sharing one database.
	services := []*chatlist.Service{chatlist.NewService(s), chatlist.NewService(s)}
	ctx := context.Background()

	const n = 20
	ids := make([]uint, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice.ID, bob.ID
			if i%2 == 1 {
				a, b = b, a
			}
			id, err := services[i%2].EnsurePrivateRoom(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var rooms int64
	require.NoError(t, s.DB.Model(&models.Room{}).Count(&rooms).Error)
	assert.Equal(t, int64(1), rooms)
}

func TestEnsurePrivateRoom_Validation(t *testing.T) {
	svc := chatlist.NewService(storagetest.NewService(t))

	_, err := svc.EnsurePrivateRoom(context.Background(), 3, 3)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.EnsurePrivateRoom(context.Background(), 0, 3)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

// staleFinder misses the first lookup, as if another process created the room
// between our read and our insert.
type staleFinder struct {
	*storage.Service
	misses atomic.Int32
}

func (f *staleFinder) FindPrivateRoom(ctx context.Context, a, b uint) (*models.Room, error) {
	if f.misses.Add(1) == 1 {
		return nil, nil
	}
	return f.Service.FindPrivateRoom(ctx, a, b)
}

func TestEnsurePrivateRoom_ResolvesConflictByReading(t *testing.T) {
	s := storagetest.NewService(t)
	alice := storagetest.SeedUser(t, s, "alice")
	bob := storagetest.SeedUser(t, s, "bob")
	existing, err := s.CreatePrivateRoom(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)

	svc := chatlist.NewService(&staleFinder{Service: s})
	id, err := svc.EnsurePrivateRoom(context.Background(), bob.ID, alice.ID)

	require.NoError(t, err)
	assert.Equal(t, existing.ID, id)
}

// gatedFinder holds the first lookup until released and records whether
// the context it ran under had been cancelled by then.
type gatedFinder struct {
	*storage.Service
	entered   chan struct{}
	release   chan struct{}
	calls     atomic.Int32
	cancelled atomic.Bool
}

func (f *gatedFinder) FindPrivateRoom(ctx context.Context, a, b uint) (*models.Room, error) {
	if f.calls.Add(1) == 1 {
		close(f.entered)
		<-f.release
		f.cancelled.Store(ctx.Err() != nil)
	}
	return f.Service.FindPrivateRoom(ctx, a, b)
}

func TestEnsurePrivateRoom_CancelledCallerDoesNotFailOthers(t *testing.T) {
	s := storagetest.NewService(t)
	alice := storagetest.SeedUser(t, s, "alice")
	bob := storagetest.SeedUser(t, s, "bob")
	finder := &gatedFinder{Service: s, entered: make(chan struct{}), release: make(chan struct{})}
	svc := chatlist.NewService(finder)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.EnsurePrivateRoom(first, alice.ID, bob.ID)
		firstErr <- err
	}()
	<-finder.entered

	type result struct {
		id  uint
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := svc.EnsurePrivateRoom(context.Background(), bob.ID, alice.ID)
		second <- result{id, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	time.Sleep(20 * time.Millisecond)
	close(finder.release)

	got := <-second
	require.NoError(t, got.err)
	assert.NotZero(t, got.id)
	assert.False(t, finder.cancelled.Load(), "the shared lookup must not inherit the first caller's cancellation")

	room, err := s.FindPrivateRoom(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, room.ID, got.id)
}

func TestListForUser(t *testing.T) {
	s := storagetest.NewService(t)
	ctx := context.Background()
	alice := storagetest.SeedUser(t, s, "alice")
	bob := storagetest.SeedUser(t, s, "bob")
	carol := storagetest.SeedUser(t, s, "carol")
	require.NoError(t, s.SetUserOnline(ctx, carol.ID, true))

	svc := chatlist.NewService(s)
	roomAB, err := svc.EnsurePrivateRoom(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = s.InsertMessage(ctx, roomAB, bob.ID, "hey alice")
	require.NoError(t, err)

	entries, err := svc.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, bob.ID, entries[0].ID)
	assert.Equal(t, roomAB, entries[0].RoomID)
	require.NotNil(t, entries[0].LastMessage)
	assert.Equal(t, "hey alice", *entries[0].LastMessage)
	assert.Equal(t, bob.ID, *entries[0].LastSenderID)
	assert.False(t, entries[0].IsOnline)

	assert.Equal(t, carol.ID, entries[1].ID)
	assert.NotZero(t, entries[1].RoomID, "the room is created lazily")
	assert.Nil(t, entries[1].LastMessage)
	assert.Nil(t, entries[1].LastSenderID)
	assert.True(t, entries[1].IsOnline)

	// Listing again reuses the rooms.
	again, err := svc.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, entries[1].RoomID, again[1].RoomID)
	var rooms int64
	require.NoError(t, s.DB.Model(&models.Room{}).Count(&rooms).Error)
	assert.Equal(t, int64(2), rooms)
}
