package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/config"
	"chatline/backend/internal/models"
)

// Store is the persistence the hub needs.
type Store interface {
	StatusStore
	MessageStore
}

// ManagerService is the realtime hub: it owns the connection registry, the
// presence tracker, the broadcaster and the ingest pipeline of one process.
type ManagerService struct {
	Registry    *Registry
	Presence    *Presence
	Broadcaster *Broadcaster
	Pipeline    *Pipeline

	relay *RedisRelay
}

// NewManagerService creates an empty hub.
func NewManagerService(s Store, cfg config.Config) *ManagerService {
	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)
	presence := NewPresence(s, broadcaster, PresenceOptions{
		PersistTimeout: cfg.PersistTimeout,
		Attempts:       cfg.PresencePersistAttempts,
		RetryBackoff:   cfg.PresenceRetryBackoff,
	})

	return &ManagerService{
		Registry:    registry,
		Presence:    presence,
		Broadcaster: broadcaster,
		Pipeline:    NewPipeline(s, broadcaster, presence, cfg.MaxMessageLength, cfg.PersistTimeout),
	}
}

// SetRelay makes broadcasts reach connections held by other instances.
func (m *ManagerService) SetRelay(relay *RedisRelay) {
	m.relay = relay
	if relay == nil {
		m.Broadcaster.SetRelay(nil)
		return
	}
	m.Broadcaster.SetRelay(relay)
}

func (m *ManagerService) SetOfflineNotifier(n OfflineNotifier) {
	m.Pipeline.SetOfflineNotifier(n)
}

// Connect registers a new connection. principal is the user the transport
// authenticated, or 0 when the transport carries no identity.
func (m *ManagerService) Connect(client Client, principal uint) error {
	return m.Registry.Register(client, principal)
}

// Identify binds the connection to a user and counts it for presence.
func (m *ManagerService) Identify(ctx context.Context, connID string, userID uint) error {
	if userID == 0 {
		return apperr.Validation("userId is required")
	}
	principal, err := m.Registry.Principal(connID)
	if err != nil {
		return err
	}
	if principal != 0 && principal != userID {
		return apperr.Auth("cannot join as user %d", userID)
	}

	if err := m.Registry.Identify(connID, userID); err != nil {
		return err
	}
	m.Presence.Increment(ctx, userID)
	if !m.Registry.MarkCounted(connID) {
		// Disconnected while the increment was in flight.
		m.Presence.Decrement(ctx, userID)
	}
	return nil
}

func (m *ManagerService) JoinRoom(connID string, roomID uint) error {
	return m.Registry.JoinRoom(connID, roomID)
}

func (m *ManagerService) LeaveRoom(connID string, roomID uint) error {
	return m.Registry.LeaveRoom(connID, roomID)
}

// HandleSend runs a send_message from a connection. The sender must be the
// connection's identified user.
func (m *ManagerService) HandleSend(ctx context.Context, connID string, payload models.SendMessagePayload) (*models.Message, error) {
	userID, ok := m.Registry.UserOf(connID)
	if !ok {
		return nil, apperr.Auth("join before sending messages")
	}
	if payload.SenderID == 0 {
		return nil, apperr.Validation("sender_id is required")
	}
	if payload.SenderID != userID {
		return nil, apperr.Auth("sender_id does not match the connected user")
	}
	return m.Pipeline.SendMessage(ctx, payload.RoomID, userID, payload.Message)
}

// SendMessage runs the pipeline for a message that did not arrive over a
// connection (the HTTP path).
func (m *ManagerService) SendMessage(ctx context.Context, roomID, senderID uint, body string) (*models.Message, error) {
	return m.Pipeline.SendMessage(ctx, roomID, senderID, body)
}

// SetUserStatus persists and announces an explicit status.
func (m *ManagerService) SetUserStatus(ctx context.Context, userID uint, isOnline bool) error {
	return m.Presence.SetExplicit(ctx, userID, isOnline)
}

// Disconnect removes the connection and uncounts it for presence.
func (m *ManagerService) Disconnect(ctx context.Context, connID string) {
	dep, ok := m.Registry.Unregister(connID)
	if !ok {
		return
	}
	if dep.Counted {
		m.Presence.Decrement(ctx, dep.UserID)
	}
}

// Dispatch decodes one inbound frame and routes it. Errors are reported to
// the originating connection as message_error.
func (m *ManagerService) Dispatch(ctx context.Context, connID string, frame []byte) {
	env, err := models.DecodeEnvelope(frame)
	if err != nil {
		m.reject(connID, apperr.Validation("%v", err))
		return
	}

	switch env.Event {
	case models.EventJoin:
		var p models.JoinPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.reject(connID, apperr.Validation("%v", err))
			return
		}
		err = m.Identify(ctx, connID, p.UserID)

	case models.EventJoinRoom, models.EventLeaveRoom:
		var p models.RoomPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.reject(connID, apperr.Validation("%v", err))
			return
		}
		if env.Event == models.EventJoinRoom {
			err = m.JoinRoom(connID, p.RoomID)
		} else {
			err = m.LeaveRoom(connID, p.RoomID)
		}

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			m.reject(connID, apperr.Validation("invalid send_message payload"))
			return
		}
		if err := p.Validate(); err != nil {
			m.reject(connID, apperr.Validation("%v", err))
			return
		}
		_, err = m.HandleSend(ctx, connID, p)

	default:
		err = apperr.Validation("unknown event %q", env.Event)
	}

	if err != nil {
		m.reject(connID, err)
	}
}

// Run serves relayed events until ctx is done. Without a relay it just waits.
func (m *ManagerService) Run(ctx context.Context) error {
	if m.relay == nil {
		<-ctx.Done()
		return nil
	}
	return m.relay.Listen(ctx, func(ev RelayEvent) {
		m.Broadcaster.DeliverRelayed(ev)
	})
}

// Shutdown disconnects every connection, which persists offline for every
// user that was online here, then waits for pending notifications.
func (m *ManagerService) Shutdown(ctx context.Context) error {
	ids := m.Registry.Connections()
	for _, id := range ids {
		m.Disconnect(ctx, id)
	}
	log.Printf("INFO: Hub: closed %d connections", len(ids))
	return m.Pipeline.Wait(ctx)
}

func (m *ManagerService) reject(connID string, err error) {
	reason := err.Error()
	if errors.Is(err, apperr.ErrPersistence) || (!apperr.Classified(err) && !isRegistryError(err)) {
		log.Printf("ERROR: Hub: connection %s: %v", connID, err)
		reason = "internal error"
	}
	if sendErr := m.Broadcaster.SendTo(connID, models.EventMessageError, models.MessageError{Error: reason}); sendErr != nil {
		log.Printf("WARNING: DeliveryWarning: %s to connection %s: %v", models.EventMessageError, connID, sendErr)
	}
}

func isRegistryError(err error) bool {
	return errors.Is(err, ErrAlreadyIdentified) ||
		errors.Is(err, ErrAlreadyRegistered) ||
		errors.Is(err, ErrConnNotFound)
}
