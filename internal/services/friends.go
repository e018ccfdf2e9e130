package services

import (
	"context"
	"errors"
	"fmt"

	"anon-social-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// FriendGraphService maintains friend edges and the friend request lifecycle.
// Every mutation touches both user records inside one store transaction.
type FriendGraphService struct {
	users     ProfileStore
	publisher EventPublisher
	notifier  Notifier
}

// NewFriendGraphService creates a new friend graph service
func NewFriendGraphService(users ProfileStore, publisher EventPublisher, notifier Notifier) *FriendGraphService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &FriendGraphService{
		users:     users,
		publisher: publisher,
		notifier:  notifier,
	}
}

// SendRequest creates a pending request from one user to another
func (s *FriendGraphService) SendRequest(ctx context.Context, fromID, toID string) error {
	if fromID == toID {
		return models.InvalidState("you cannot send a friend request to yourself")
	}

	var from, to *models.User
	err := s.mutate(ctx, "send_request", fromID, toID, models.PairMutation{
		Apply: func(f, t *models.User) error {
			switch {
			case f.IsFriend(t.ID) || t.IsFriend(f.ID):
				return models.InvalidState("you are already friends")
			case f.HasSentTo(t.ID) || t.HasReceivedFrom(f.ID):
				return models.InvalidState("friend request already pending")
			case f.HasReceivedFrom(t.ID) || t.HasSentTo(f.ID):
				return models.InvalidState("this user already sent you a friend request")
			}
			f.AddSent(t.ID)
			t.AddReceived(f.ID)
			from, to = f, t
			return nil
		},
	})
	if err != nil {
		return err
	}

	if err := s.notifier.NotifyFriendRequest(ctx, to, from); err != nil {
		log.Warn().Err(err).Str("user_id", toID).Msg("Failed to notify friend request")
	}
	return nil
}

// CancelRequest withdraws a pending request sent by fromID
func (s *FriendGraphService) CancelRequest(ctx context.Context, fromID, toID string) error {
	return s.mutate(ctx, "cancel_request", fromID, toID, models.PairMutation{
		Apply: func(f, t *models.User) error {
			if !f.HasSentTo(t.ID) && !t.HasReceivedFrom(f.ID) {
				return models.NotFound("no pending friend request to cancel")
			}
			f.RemoveSent(t.ID)
			t.RemoveReceived(f.ID)
			return nil
		},
	})
}

// AcceptRequest turns a pending request from senderID into a friend edge
func (s *FriendGraphService) AcceptRequest(ctx context.Context, receiverID, senderID string) error {
	return s.mutate(ctx, "accept_request", receiverID, senderID, models.PairMutation{
		Apply: func(r, snd *models.User) error {
			if !r.HasReceivedFrom(snd.ID) {
				return models.NotFound("no pending friend request from this user")
			}
			befriend(r, snd)
			return nil
		},
	})
}

// RejectRequest drops a pending request from senderID without befriending
func (s *FriendGraphService) RejectRequest(ctx context.Context, receiverID, senderID string) error {
	return s.mutate(ctx, "reject_request", receiverID, senderID, models.PairMutation{
		Apply: func(r, snd *models.User) error {
			if !r.HasReceivedFrom(snd.ID) && !snd.HasSentTo(r.ID) {
				return models.NotFound("no pending friend request from this user")
			}
			r.RemoveReceived(snd.ID)
			snd.RemoveSent(r.ID)
			return nil
		},
	})
}

// Unfriend removes the friend edge and deletes the pair's conversation
func (s *FriendGraphService) Unfriend(ctx context.Context, aID, bID string) error {
	if aID == bID {
		return models.NotFound("you are not friends")
	}
	return s.mutate(ctx, "unfriend", aID, bID, models.PairMutation{
		Apply: func(a, b *models.User) error {
			if !a.IsFriend(b.ID) && !b.IsFriend(a.ID) {
				return models.NotFound("you are not friends")
			}
			a.RemoveFriend(b.ID)
			b.RemoveFriend(a.ID)
			return nil
		},
		DropConversation: true,
	})
}

// errUnchanged aborts a pair mutation that has nothing to write
var errUnchanged = errors.New("friend graph unchanged")

// EnsureFriends adds a friend edge unless one exists, clearing any pending
// requests between the pair. It reports whether an edge was created.
func (s *FriendGraphService) EnsureFriends(ctx context.Context, aID, bID string) (bool, error) {
	return s.befriendOnce(ctx, "auto_friend", aID, bID, models.PairMutation{})
}

// BefriendOnReveal adds the friend edge for the pair of a mutually revealed
// conversation. The conversation is re-read in the same transaction, so an
// unfriend that already deleted it is never undone.
func (s *FriendGraphService) BefriendOnReveal(ctx context.Context, conversationID, aID, bID string) (bool, error) {
	return s.befriendOnce(ctx, "reveal_friend", aID, bID, models.PairMutation{
		Conversation: func(conv *models.Conversation) error {
			if conv == nil || conv.ID != conversationID || !conv.BothRevealed() {
				return errUnchanged
			}
			return nil
		},
	})
}

func (s *FriendGraphService) befriendOnce(ctx context.Context, op, aID, bID string, m models.PairMutation) (bool, error) {
	m.Apply = func(a, b *models.User) error {
		if a.IsFriend(b.ID) && b.IsFriend(a.ID) {
			return errUnchanged
		}
		befriend(a, b)
		return nil
	}
	err := s.mutate(ctx, op, aID, bID, m)
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AreFriends reports whether two users share a friend edge
func (s *FriendGraphService) AreFriends(ctx context.Context, aID, bID string) (bool, error) {
	a, err := s.users.GetByID(ctx, aID)
	if err != nil {
		return false, err
	}
	return a.IsFriend(bID), nil
}

// Overview lists a user's friends and pending requests
func (s *FriendGraphService) Overview(ctx context.Context, userID string) (*models.FriendsOverview, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(me.Friends)+len(me.ReceivedRequests)+len(me.SentRequests))
	ids = append(ids, me.Friends...)
	ids = append(ids, me.ReceivedRequests...)
	ids = append(ids, me.SentRequests...)

	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load related users: %w", err)
	}
	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	return &models.FriendsOverview{
		Friends:  summaries(me.Friends, byID),
		Incoming: summaries(me.ReceivedRequests, byID),
		Outgoing: summaries(me.SentRequests, byID),
	}, nil
}

func summaries(ids []string, byID map[string]*models.User) []models.UserSummary {
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out
}

// befriend adds the symmetric edge and clears requests in both directions
func befriend(a, b *models.User) {
	a.AddFriend(b.ID)
	b.AddFriend(a.ID)
	a.RemoveSent(b.ID)
	a.RemoveReceived(b.ID)
	b.RemoveSent(a.ID)
	b.RemoveReceived(a.ID)
}

func (s *FriendGraphService) mutate(ctx context.Context, op, aID, bID string, m models.PairMutation) error {
	err := s.users.MutatePair(ctx, aID, bID, m)
	if errors.Is(err, errUnchanged) {
		friendGraphOps.WithLabelValues(op, "unchanged").Inc()
		return err
	}
	friendGraphOps.WithLabelValues(op, outcomeLabel(err)).Inc()
	if err != nil {
		log.Debug().Err(err).Str("operation", op).Str("user_id", aID).Str("peer_id", bID).Msg("Friend graph mutation rejected")
		return err
	}

	log.Info().Str("operation", op).Str("user_id", aID).Str("peer_id", bID).Msg("Friend graph updated")
	s.notifyChanged(aID, op, bID)
	s.notifyChanged(bID, op, aID)
	return nil
}

func (s *FriendGraphService) notifyChanged(userID, op, peerID string) {
	if s.publisher == nil || !s.publisher.IsOnline(userID) {
		return
	}
	msg := WSMessage{
		Type: WSTypeFriendsChanged,
		Data: map[string]string{"operation": op, "peer_id": peerID},
	}
	if err := s.publisher.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send friends_changed")
	}
}
