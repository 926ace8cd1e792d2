package chathub

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/models"
)

// MessageStore is the part of the gateway the pipeline writes through.
type MessageStore interface {
	InsertMessage(ctx context.Context, roomID, senderID uint, body string) (*models.Message, error)
	ListRoomMembers(ctx context.Context, roomID uint) ([]uint, error)
}

// OfflineNotifier reaches room members that have no live connection.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, msg *models.Message, recipients []uint)
}

// Pipeline validates, persists and fans out a chat message.
type Pipeline struct {
	store       MessageStore
	broadcaster *Broadcaster
	presence    *Presence

	maxLength      int
	persistTimeout time.Duration

	notifier OfflineNotifier
	pending  sync.WaitGroup
}

func NewPipeline(store MessageStore, broadcaster *Broadcaster, presence *Presence, maxLength int, persistTimeout time.Duration) *Pipeline {
	return &Pipeline{
		store:          store,
		broadcaster:    broadcaster,
		presence:       presence,
		maxLength:      maxLength,
		persistTimeout: persistTimeout,
	}
}

func (p *Pipeline) SetOfflineNotifier(n OfflineNotifier) {
	p.notifier = n
}

// SendMessage stores the message and, once it is durable, delivers
// receive_message to the room and update_chatlist to every member.
// The sender must be a member of the room. Nothing is persisted or broadcast
// when validation, the membership check or the insert fails.
func (p *Pipeline) SendMessage(ctx context.Context, roomID, senderID uint, body string) (*models.Message, error) {
	if err := p.validate(roomID, senderID, body); err != nil {
		return nil, err
	}

	members, err := p.members(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(members, senderID) {
		return nil, apperr.Forbidden("not a member of room %d", roomID)
	}

	insertCtx, cancel := p.withTimeout(ctx)
	msg, err := p.store.InsertMessage(insertCtx, roomID, senderID, body)
	cancel()
	if err != nil {
		return nil, err
	}

	p.broadcaster.BroadcastToRoom(ctx, roomID, models.EventReceiveMessage, msg)
	for _, member := range members {
		p.broadcaster.BroadcastToUser(ctx, member, models.EventUpdateChatlist, msg)
	}

	p.notifyOffline(ctx, msg, members)
	return msg, nil
}

// members resolves the room's members. Every room has at least one member,
// so an empty result means the room does not exist.
func (p *Pipeline) members(ctx context.Context, roomID uint) ([]uint, error) {
	listCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	members, err := p.store.ListRoomMembers(listCtx, roomID)
	if err != nil {
		return nil, apperr.Persistence(err, "list room members")
	}
	if len(members) == 0 {
		return nil, apperr.NotFound("room %d", roomID)
	}
	return members, nil
}

// Wait blocks until pending offline notifications finish or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) validate(roomID, senderID uint, body string) error {
	switch {
	case roomID == 0:
		return apperr.Validation("room_id is required")
	case senderID == 0:
		return apperr.Validation("sender_id is required")
	case strings.TrimSpace(body) == "":
		return apperr.Validation("message is empty")
	case p.maxLength > 0 && utf8.RuneCountInString(body) > p.maxLength:
		return apperr.Validation("message exceeds %d characters", p.maxLength)
	}
	return nil
}

func (p *Pipeline) notifyOffline(ctx context.Context, msg *models.Message, members []uint) {
	if p.notifier == nil {
		return
	}

	var offline []uint
	for _, member := range members {
		if member == msg.SenderID {
			continue
		}
		if p.presence != nil && p.presence.IsOnline(member) {
			continue
		}
		offline = append(offline, member)
	}
	if len(offline) == 0 {
		return
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		p.notifier.NotifyOffline(context.WithoutCancel(ctx), msg, offline)
	}()
}

func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.persistTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.persistTimeout)
}
