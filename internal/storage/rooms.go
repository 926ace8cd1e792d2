package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/models"

	"gorm.io/gorm"
)

// FindPrivateRoom returns the private room of the unordered pair, or nil.
func (s *Service) FindPrivateRoom(ctx context.Context, userA, userB uint) (*models.Room, error) {
	var room models.Room
	err := s.DB.WithContext(ctx).
		Where("type = ? AND pair_key = ?", models.RoomTypePrivate, models.PrivatePairKey(userA, userB)).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence(err, "find private room")
	}
	return &room, nil
}

// CreatePrivateRoom creates the room and both memberships in one transaction.
// A concurrent creation for the same pair fails with apperr.ErrDuplicate.
func (s *Service) CreatePrivateRoom(ctx context.Context, userA, userB uint) (*models.Room, error) {
	if userA == 0 || userB == 0 || userA == userB {
		return nil, apperr.Validation("a private room needs two distinct users")
	}

	key := models.PrivatePairKey(userA, userB)
	room := &models.Room{Type: models.RoomTypePrivate, PairKey: &key}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		members := []models.RoomMember{
			{RoomID: room.ID, UserID: userA},
			{RoomID: room.ID, UserID: userB},
		}
		return tx.Create(&members).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, apperr.Duplicate("private room %s", key)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "create private room")
	}
	return room, nil
}

// CreateGroupRoom creates a named room with the given members.
// Duplicate member ids are collapsed.
func (s *Service) CreateGroupRoom(ctx context.Context, name string, memberIDs []uint) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}

	seen := make(map[uint]struct{}, len(memberIDs))
	members := make([]models.RoomMember, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id == 0 {
			return nil, apperr.Validation("member id must be positive")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, models.RoomMember{UserID: id})
	}
	if len(members) == 0 {
		return nil, apperr.Validation("a group needs at least one member")
	}

	room := &models.Room{Type: models.RoomTypeGroup, Name: &name}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found int64
		if err := tx.Model(&models.User{}).Where("id IN ?", keys(seen)).Count(&found).Error; err != nil {
			return err
		}
		if int(found) != len(seen) {
			return apperr.NotFound("one or more members do not exist")
		}
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		for i := range members {
			members[i].RoomID = room.ID
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return nil, apperr.Persistence(err, "create group room")
	}
	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, roomID uint) (*models.Room, error) {
	var room models.Room
	err := s.DB.WithContext(ctx).First(&room, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("room %d", roomID)
	}
	if err != nil {
		return nil, apperr.Persistence(err, "get room")
	}
	return &room, nil
}

// ListRoomMembers returns the member ids of a room in ascending order.
func (s *Service) ListRoomMembers(ctx context.Context, roomID uint) ([]uint, error) {
	var ids []uint
	err := s.DB.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ?", roomID).
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, apperr.Persistence(err, "list room members")
	}
	return ids, nil
}

// ListRoomMemberProfiles returns the users of a room.
func (s *Service) ListRoomMemberProfiles(ctx context.Context, roomID uint) ([]models.User, error) {
	var users []models.User
	err := s.DB.WithContext(ctx).
		Joins("JOIN room_members ON room_members.user_id = users.id").
		Where("room_members.room_id = ?", roomID).
		Order("users.id asc").
		Find(&users).Error
	if err != nil {
		return nil, apperr.Persistence(err, "list room member profiles")
	}
	return users, nil
}

func keys(set map[uint]struct{}) []uint {
	out := make([]uint, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func uintKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
