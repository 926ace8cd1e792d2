package chathub

import (
	"context"
	"fmt"
	"log"

	"chatline/backend/internal/models"
)

// Relay publishes locally issued broadcasts for other instances.
type Relay interface {
	Publish(ctx context.Context, ev RelayEvent) error
}

// Broadcaster delivers events to a room, a user, everybody or one
// connection. Each payload is encoded once; a failed delivery is logged and
// never stops the remaining ones.
type Broadcaster struct {
	registry *Registry
	relay    Relay
}

func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// SetRelay enables cross-instance delivery. Pass nil to disable it.
func (b *Broadcaster) SetRelay(relay Relay) {
	b.relay = relay
}

// BroadcastToRoom returns the number of local connections that accepted the event.
func (b *Broadcaster) BroadcastToRoom(ctx context.Context, roomID uint, event string, payload any) int {
	return b.broadcast(ctx, ScopeRoom, roomID, event, payload)
}

func (b *Broadcaster) BroadcastToUser(ctx context.Context, userID uint, event string, payload any) int {
	return b.broadcast(ctx, ScopeUser, userID, event, payload)
}

func (b *Broadcaster) BroadcastGlobal(ctx context.Context, event string, payload any) int {
	return b.broadcast(ctx, ScopeGlobal, 0, event, payload)
}

// SendTo delivers to a single local connection. It is never relayed.
func (b *Broadcaster) SendTo(connID, event string, payload any) error {
	frame, err := models.EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return b.registry.Send(connID, frame)
}

// NotifyStatus announces a presence change to everybody.
func (b *Broadcaster) NotifyStatus(ctx context.Context, change models.StatusChange) {
	b.BroadcastGlobal(ctx, models.EventUserStatusChange, change)
}

// DeliverRelayed hands an event from another instance to local connections only.
func (b *Broadcaster) DeliverRelayed(ev RelayEvent) int {
	targets, err := b.targets(ev.Scope, ev.Target)
	if err != nil {
		log.Printf("WARNING: Relay: %v", err)
		return 0
	}
	return b.deliver(targets, ev.Frame, "relayed "+ev.Scope)
}

func (b *Broadcaster) broadcast(ctx context.Context, scope string, target uint, event string, payload any) int {
	frame, err := models.EncodeEvent(event, payload)
	if err != nil {
		log.Printf("ERROR: Broadcast: %v", err)
		return 0
	}

	if b.relay != nil {
		ev := RelayEvent{Scope: scope, Target: target, Frame: frame}
		if err := b.relay.Publish(ctx, ev); err != nil {
			log.Printf("WARNING: Relay: failed to publish %s for %s %d: %v", event, scope, target, err)
		}
	}

	targets, _ := b.targets(scope, target)
	return b.deliver(targets, frame, event)
}

func (b *Broadcaster) targets(scope string, target uint) ([]string, error) {
	switch scope {
	case ScopeRoom:
		return b.registry.ConnectionsForRoom(target), nil
	case ScopeUser:
		return b.registry.ConnectionsForUser(target), nil
	case ScopeGlobal:
		return b.registry.Connections(), nil
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}
}

func (b *Broadcaster) deliver(connIDs []string, frame []byte, event string) int {
	delivered := 0
	for _, id := range connIDs {
		if err := b.registry.Send(id, frame); err != nil {
			log.Printf("WARNING: DeliveryWarning: %s to connection %s: %v", event, id, err)
			continue
		}
		delivered++
	}
	return delivered
}
