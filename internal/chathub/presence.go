package chathub

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/models"
)

const presenceStripes = 64

// StatusStore persists the online flag of a user.
type StatusStore interface {
	SetUserOnline(ctx context.Context, userID uint, isOnline bool) error
}

// StatusNotifier announces a presence transition.
type StatusNotifier interface {
	NotifyStatus(ctx context.Context, change models.StatusChange)
}

// PresenceOptions bounds the persistence side effect of a transition.
type PresenceOptions struct {
	PersistTimeout time.Duration
	Attempts       int
	RetryBackoff   time.Duration
}

// Presence counts live identified connections per user and owns the
// offline/online state machine. A user is online while its count is positive.
//
// Mutations for one user are serialized by a striped lock that is held across
// the persist and the broadcast, so transitions leave the process in the same
// order as the edges that caused them. The count map has its own mutex so
// readers never wait on a persist.
//
// A persist that keeps failing holds its stripe for up to
// Attempts × (PersistTimeout + backoff). Users on other stripes are not
// affected, but users that share the stripe wait behind it.
type Presence struct {
	store    StatusStore
	notifier StatusNotifier
	opts     PresenceOptions

	stripes [presenceStripes]sync.Mutex

	mu     sync.Mutex
	counts map[uint]int
}

func NewPresence(store StatusStore, notifier StatusNotifier, opts PresenceOptions) *Presence {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &Presence{
		store:    store,
		notifier: notifier,
		opts:     opts,
		counts:   make(map[uint]int),
	}
}

func (p *Presence) lockUser(userID uint) func() {
	m := &p.stripes[userID%presenceStripes]
	m.Lock()
	return m.Unlock
}

// Increment counts a new connection of the user. It returns true on the
// offline to online edge, after the transition was persisted and announced.
func (p *Presence) Increment(ctx context.Context, userID uint) bool {
	unlock := p.lockUser(userID)
	defer unlock()

	p.mu.Lock()
	p.counts[userID]++
	first := p.counts[userID] == 1
	p.mu.Unlock()

	if first {
		p.transition(ctx, userID, true)
	}
	return first
}

// Decrement uncounts a connection of the user. It returns true on the online
// to offline edge. At zero it does nothing.
func (p *Presence) Decrement(ctx context.Context, userID uint) bool {
	unlock := p.lockUser(userID)
	defer unlock()

	p.mu.Lock()
	n, ok := p.counts[userID]
	if !ok || n == 0 {
		p.mu.Unlock()
		return false
	}
	last := n == 1
	if last {
		delete(p.counts, userID)
	} else {
		p.counts[userID] = n - 1
	}
	p.mu.Unlock()

	if last {
		p.transition(ctx, userID, false)
	}
	return last
}

// SetExplicit persists a status chosen by the user or an operator and, once
// persisted, announces it. The connection count is neither consulted nor
// changed, so the announced state can disagree with the count until the next
// edge.
func (p *Presence) SetExplicit(ctx context.Context, userID uint, isOnline bool) error {
	unlock := p.lockUser(userID)
	defer unlock()

	if err := p.persist(ctx, userID, isOnline); err != nil {
		return err
	}
	p.notify(ctx, userID, isOnline)
	return nil
}

// IsOnline reports whether the user has at least one counted connection here.
func (p *Presence) IsOnline(userID uint) bool {
	return p.Count(userID) > 0
}

func (p *Presence) Count(userID uint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID]
}

// OnlineUsers returns the users with a positive count, ascending.
func (p *Presence) OnlineUsers() []uint {
	p.mu.Lock()
	ids := make([]uint, 0, len(p.counts))
	for id := range p.counts {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// transition persists then announces. A persist failure is logged and the
// announcement still goes out.
func (p *Presence) transition(ctx context.Context, userID uint, isOnline bool) {
	if err := p.persist(ctx, userID, isOnline); err != nil {
		log.Printf("ERROR: Presence: could not persist online=%t for user %d: %v", isOnline, userID, err)
	}
	p.notify(ctx, userID, isOnline)
}

func (p *Presence) notify(ctx context.Context, userID uint, isOnline bool) {
	if p.notifier == nil {
		return
	}
	p.notifier.NotifyStatus(ctx, models.StatusChange{ID: userID, IsOnline: isOnline})
}

// persist writes the flag with a bounded number of attempts, each bounded by
// PersistTimeout.
func (p *Presence) persist(ctx context.Context, userID uint, isOnline bool) error {
	if p.store == nil {
		return nil
	}

	var err error
	for attempt := 1; attempt <= p.opts.Attempts; attempt++ {
		err = p.persistOnce(ctx, userID, isOnline)
		if err == nil {
			return nil
		}
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
			return err
		}
		if attempt == p.opts.Attempts {
			break
		}
		log.Printf("WARNING: Presence: persist attempt %d/%d for user %d failed: %v", attempt, p.opts.Attempts, userID, err)

		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(p.opts.RetryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (p *Presence) persistOnce(ctx context.Context, userID uint, isOnline bool) error {
	if p.opts.PersistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.PersistTimeout)
		defer cancel()
	}
	return p.store.SetUserOnline(ctx, userID, isOnline)
}
