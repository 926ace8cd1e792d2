package chathub_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"chatline/backend/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore is a testify mock of the persistence the hub uses.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SetUserOnline(ctx context.Context, userID uint, isOnline bool) error {
	args := m.Called(ctx, userID, isOnline)
	return args.Error(0)
}

func (m *MockStore) InsertMessage(ctx context.Context, roomID, senderID uint, body string) (*models.Message, error) {
	args := m.Called(ctx, roomID, senderID, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStore) ListRoomMembers(ctx context.Context, roomID uint) ([]uint, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint), args.Error(1)
}

// MockClient records frames the hub enqueues for it.
type MockClient struct {
	connID string
	send   chan []byte

	mu     sync.Mutex
	closed bool
}

func newMockClient(connID string) *MockClient {
	return newMockClientWithBuffer(connID, 32)
}

func newMockClientWithBuffer(connID string, size int) *MockClient {
	return &MockClient{
		connID: connID,
		send:   make(chan []byte, size),
	}
}

func (c *MockClient) GetConnID() string             { return c.connID }
func (c *MockClient) GetSendChannel() chan<- []byte { return c.send }
func (c *MockClient) Run()                          {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames drains and decodes every frame queued so far.
func (c *MockClient) Frames(t *testing.T) []models.Envelope {
	t.Helper()

	var out []models.Envelope
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return out
			}
			env, err := models.DecodeEnvelope(frame)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}

// Events returns the names of the drained frames.
func (c *MockClient) Events(t *testing.T) []string {
	t.Helper()

	var names []string
	for _, env := range c.Frames(t) {
		names = append(names, env.Event)
	}
	return names
}

func decodeData[T any](t *testing.T, env models.Envelope) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// statusRecorder collects announced presence changes in order.
type statusRecorder struct {
	mu      sync.Mutex
	changes []models.StatusChange
}

func (r *statusRecorder) NotifyStatus(_ context.Context, change models.StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *statusRecorder) Changes() []models.StatusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StatusChange(nil), r.changes...)
}
