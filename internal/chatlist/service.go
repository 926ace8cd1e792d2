// Package chatlist builds a user's chat list: every other user with the
// private room they share and the last message exchanged in it.
package chatlist

import (
	"context"
	"errors"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/config"
	"chatline/backend/internal/models"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const maxConcurrentRows = 8

// Store is the part of the gateway the chat list reads and writes.
type Store interface {
	ListUsersExcept(ctx context.Context, userID uint) ([]models.User, error)
	FindPrivateRoom(ctx context.Context, userA, userB uint) (*models.Room, error)
	CreatePrivateRoom(ctx context.Context, userA, userB uint) (*models.Room, error)
	GetLastMessage(ctx context.Context, roomID uint) (*models.Message, error)
}

// Entry is one row of the chat list.
type Entry struct {
	ID           uint    `json:"id"`
	FullName     string  `json:"full_name"`
	Nickname     string  `json:"nickname"`
	Avatar       string  `json:"avatar"`
	IsOnline     bool    `json:"isOnline"`
	RoomID       uint    `json:"room_id"`
	LastMessage  *string `json:"lastMessage"`
	LastSenderID *uint   `json:"mesSender_id"`
}

type Service struct {
	store    Store
	inflight singleflight.Group

	flightTimeout time.Duration
}

func NewService(store Store) *Service {
	return &Service{store: store, flightTimeout: config.DefaultPersistTimeout}
}

// EnsurePrivateRoom returns the private room of the pair, creating it on
// first use. Concurrent calls for the same pair in this process share one
// creation; a creation lost to another process is resolved by reading the
// winner's room.
func (s *Service) EnsurePrivateRoom(ctx context.Context, userA, userB uint) (uint, error) {
	if userA == 0 || userB == 0 {
		return 0, apperr.Validation("user ids must be positive")
	}
	if userA == userB {
		return 0, apperr.Validation("cannot open a private room with yourself")
	}

	// The flight outlives any single caller: a cancelled request must not
	// fail the others waiting on the same pair.
	key := models.PrivatePairKey(userA, userB)
	ch := s.inflight.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.findOrCreate(flightCtx, userA, userB)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(uint), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Service) findOrCreate(ctx context.Context, userA, userB uint) (uint, error) {
	room, err := s.store.FindPrivateRoom(ctx, userA, userB)
	if err != nil {
		return 0, err
	}
	if room != nil {
		return room.ID, nil
	}

	room, err = s.store.CreatePrivateRoom(ctx, userA, userB)
	if err == nil {
		return room.ID, nil
	}
	if !errors.Is(err, apperr.ErrDuplicate) {
		return 0, err
	}

	room, err = s.store.FindPrivateRoom(ctx, userA, userB)
	if err != nil {
		return 0, err
	}
	if room == nil {
		return 0, apperr.Persistence(errors.New("room vanished after conflict"), "ensure private room")
	}
	return room.ID, nil
}

// ListForUser returns one entry per other user, ordered by user id.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]Entry, error) {
	users, err := s.store.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRows)

	for i := range users {
		u := users[i]
		g.Go(func() error {
			roomID, err := s.EnsurePrivateRoom(gctx, userID, u.ID)
			if err != nil {
				return err
			}
			last, err := s.store.GetLastMessage(gctx, roomID)
			if err != nil {
				return err
			}

			entry := Entry{
				ID:       u.ID,
				FullName: u.FullName,
				Nickname: u.Nickname,
				Avatar:   u.Avatar,
				IsOnline: u.IsOnline,
				RoomID:   roomID,
			}
			if last != nil {
				entry.LastMessage = &last.Body
				entry.LastSenderID = &last.SenderID
			}
			entries[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}
