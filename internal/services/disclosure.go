package services

import (
	"context"
	"fmt"
	"strings"

	"anon-social-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultHistoryLimit = 200

// DisclosureState is a participant's identity state within a conversation
type DisclosureState string

const (
	StateAnonymous DisclosureState = "anonymous"
	StateRevealed  DisclosureState = "revealed"
)

// ParticipantState derives a participant's state. Friends are always revealed.
func ParticipantState(conv *models.Conversation, uid string, friends bool) DisclosureState {
	if friends || conv.RevealedBy(uid) {
		return StateRevealed
	}
	return StateAnonymous
}

// ResolveSenderName returns the name a reader sees for a sender in a conversation
func ResolveSenderName(conv *models.Conversation, reader, sender *models.User) string {
	switch {
	case sender.ID == reader.ID:
		return sender.Name
	case reader.IsFriend(sender.ID):
		return sender.Name
	case conv.BothRevealed():
		return conv.Disclosure[sender.ID].Name
	}
	return models.AnonymousName
}

// ParticipantView is one side of a conversation as seen by the viewer
type ParticipantView struct {
	UserID      string          `json:"uid"`
	DisplayName string          `json:"display_name"`
	State       DisclosureState `json:"state"`
}

// MessageView is a message with the display name resolved for the viewer
type MessageView struct {
	*models.Message
	DisplayName string `json:"displayName"`
}

// DayGroup holds the messages sent on one calendar day
type DayGroup struct {
	Day      string        `json:"day"`
	Messages []MessageView `json:"messages"`
}

// ConversationView is a conversation snapshot rendered for one viewer
type ConversationView struct {
	Conversation *models.Conversation `json:"conversation"`
	Me           ParticipantView      `json:"me"`
	Other        ParticipantView      `json:"other"`
	Friends      bool                 `json:"friends"`
	CanReveal    bool                 `json:"can_reveal"`
	Days         []DayGroup           `json:"days"`
}

// BuildView renders a snapshot for viewer. It depends only on its inputs.
func BuildView(conv *models.Conversation, viewer, other *models.User, messages []*models.Message) *ConversationView {
	friends := viewer.IsFriend(other.ID)
	meState := ParticipantState(conv, viewer.ID, friends)

	view := &ConversationView{
		Conversation: conv,
		Me: ParticipantView{
			UserID:      viewer.ID,
			DisplayName: viewer.Name,
			State:       meState,
		},
		Other: ParticipantView{
			UserID:      other.ID,
			DisplayName: ResolveSenderName(conv, viewer, other),
			State:       ParticipantState(conv, other.ID, friends),
		},
		Friends:   friends,
		CanReveal: meState == StateAnonymous,
		Days:      []DayGroup{},
	}

	for _, msg := range messages {
		sender := other
		if msg.SenderID == viewer.ID {
			sender = viewer
		}
		day := msg.Timestamp.Format("2006-01-02")
		if n := len(view.Days); n == 0 || view.Days[n-1].Day != day {
			view.Days = append(view.Days, DayGroup{Day: day})
		}
		last := &view.Days[len(view.Days)-1]
		last.Messages = append(last.Messages, MessageView{
			Message:     msg,
			DisplayName: ResolveSenderName(conv, viewer, sender),
		})
	}

	return view
}

// ConversationSummary is a conversation list entry
type ConversationSummary struct {
	ID          string          `json:"id"`
	PeerID      string          `json:"peer_id"`
	DisplayName string          `json:"display_name"`
	MyState     DisclosureState `json:"my_state"`
	PeerState   DisclosureState `json:"peer_state"`
	IsAnonymous bool            `json:"isAnonymous"`
}

// SendMessageRequest is a message composed by a participant
type SendMessageRequest struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"imageBase64"`
	// Anonymous overrides the sender's default, which follows their disclosure state
	Anonymous *bool `json:"isAnonymous,omitempty"`
}

// DisclosureService runs the per-conversation reveal protocol and messaging
type DisclosureService struct {
	users        ProfileStore
	convs        ConversationStore
	messages     MessageStore
	graph        *FriendGraphService
	publisher    EventPublisher
	historyLimit int
}

// NewDisclosureService creates a new disclosure service
func NewDisclosureService(
	users ProfileStore,
	convs ConversationStore,
	messages MessageStore,
	graph *FriendGraphService,
	publisher EventPublisher,
) *DisclosureService {
	return &DisclosureService{
		users:        users,
		convs:        convs,
		messages:     messages,
		graph:        graph,
		publisher:    publisher,
		historyLimit: defaultHistoryLimit,
	}
}

// StartConversation locates or creates the conversation with a peer
func (s *DisclosureService) StartConversation(ctx context.Context, userID, peerID string) (*models.Conversation, error) {
	if userID == peerID {
		return nil, models.InvalidState("you cannot start a conversation with yourself")
	}

	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		return nil, err
	}

	conv, created, err := s.convs.GetOrCreate(ctx, userID, peerID, !me.IsFriend(peerID))
	if err != nil {
		return nil, fmt.Errorf("failed to start conversation: %w", err)
	}
	if created {
		log.Info().Str("conversation_id", conv.ID).Str("user_id", userID).Str("peer_id", peerID).Msg("Conversation created")
	}
	return conv, nil
}

// ListConversations lists a user's conversations with resolved peer names
func (s *DisclosureService) ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	convs, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	peerIDs := make([]string, 0, len(convs))
	for _, c := range convs {
		peerIDs = append(peerIDs, c.Other(userID))
	}
	peers, err := s.users.GetByIDs(ctx, peerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load peers: %w", err)
	}
	byID := make(map[string]*models.User, len(peers))
	for _, p := range peers {
		byID[p.ID] = p
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		peer, ok := byID[c.Other(userID)]
		if !ok {
			continue
		}
		friends := me.IsFriend(peer.ID)
		out = append(out, ConversationSummary{
			ID:          c.ID,
			PeerID:      peer.ID,
			DisplayName: ResolveSenderName(c, me, peer),
			MyState:     ParticipantState(c, userID, friends),
			PeerState:   ParticipantState(c, peer.ID, friends),
			IsAnonymous: c.IsAnonymous,
		})
	}
	return out, nil
}

// Open returns the viewer's snapshot of a conversation, befriending the pair
// first if both have revealed
func (s *DisclosureService) Open(ctx context.Context, conversationID, viewerID string) (*ConversationView, error) {
	conv, err := s.participantConversation(ctx, conversationID, viewerID)
	if err != nil {
		return nil, err
	}
	if err := s.settle(ctx, conv); err != nil {
		return nil, err
	}
	return s.snapshot(ctx, conv, viewerID)
}

// Reveal discloses a participant's identity in one conversation. The
// transition is one-way; revealing twice is rejected.
func (s *DisclosureService) Reveal(ctx context.Context, conversationID, userID string) (*ConversationView, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	conv, err := s.convs.UpdateDisclosure(ctx, conversationID, func(c *models.Conversation) error {
		if !c.Has(userID) {
			return models.NotFound("conversation not found")
		}
		if me.IsFriend(c.Other(userID)) {
			return models.InvalidState("you are already friends, your identity is visible")
		}
		if c.RevealedBy(userID) {
			return models.InvalidState("identity already revealed")
		}
		if c.Disclosure == nil {
			c.Disclosure = make(map[string]models.Disclosure, 2)
		}
		c.Disclosure[userID] = models.Disclosure{Revealed: true, Name: me.Name}
		if c.BothRevealed() {
			c.IsAnonymous = false
		}
		return nil
	})
	revealsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		return nil, err
	}

	log.Info().Str("conversation_id", conv.ID).Str("user_id", userID).Msg("Identity revealed")

	if err := s.settle(ctx, conv); err != nil {
		return nil, err
	}
	s.publish(ctx, conv)
	return s.snapshot(ctx, conv, userID)
}

// SendMessage appends a message from a participant
func (s *DisclosureService) SendMessage(ctx context.Context, conversationID, senderID string, req SendMessageRequest) (*models.Message, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" && req.ImageBase64 == "" {
		return nil, models.Validation("message needs text or an image")
	}

	conv, err := s.participantConversation(ctx, conversationID, senderID)
	if err != nil {
		return nil, err
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	anonymous := ParticipantState(conv, senderID, sender.IsFriend(conv.Other(senderID))) == StateAnonymous
	if req.Anonymous != nil {
		anonymous = *req.Anonymous
	}
	senderName := sender.Name
	if anonymous {
		senderName = models.AnonymousName
	}

	msg := &models.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Text:           req.Text,
		ImageBase64:    req.ImageBase64,
		SenderID:       senderID,
		SenderName:     senderName,
		IsAnonymous:    anonymous,
	}
	if _, err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	if err := s.MessageDelivered(ctx, conv); err != nil {
		return nil, err
	}
	return msg, nil
}

// MessageDelivered runs after a message lands in a conversation. It applies
// the mutual-reveal rule and pushes fresh snapshots to subscribers.
func (s *DisclosureService) MessageDelivered(ctx context.Context, conv *models.Conversation) error {
	if err := s.settle(ctx, conv); err != nil {
		return err
	}
	s.publish(ctx, conv)
	return nil
}

// Publish pushes fresh snapshots of a conversation to subscribed participants
func (s *DisclosureService) Publish(ctx context.Context, conversationID string) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		log.Error().Err(err).Str("conversation_id", conversationID).Msg("Failed to load conversation for publish")
		return
	}
	s.publish(ctx, conv)
}

func (s *DisclosureService) participantConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(userID) {
		return nil, models.NotFound("conversation not found")
	}
	return conv, nil
}

// settle applies the mutual-reveal rule
func (s *DisclosureService) settle(ctx context.Context, conv *models.Conversation) error {
	if !conv.BothRevealed() {
		return nil
	}
	friends, err := s.graph.AreFriends(ctx, conv.Participants[0], conv.Participants[1])
	if err != nil {
		return fmt.Errorf("failed to check friendship: %w", err)
	}
	if friends {
		return nil
	}
	created, err := s.graph.BefriendOnReveal(ctx, conv.ID, conv.Participants[0], conv.Participants[1])
	if err != nil {
		return fmt.Errorf("failed to befriend after mutual reveal: %w", err)
	}
	if created {
		log.Info().Str("conversation_id", conv.ID).Msg("Mutual reveal created friendship")
	}
	return nil
}

func (s *DisclosureService) snapshot(ctx context.Context, conv *models.Conversation, viewerID string) (*ConversationView, error) {
	users, err := s.users.GetByIDs(ctx, conv.Participants[:])
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	var viewer, other *models.User
	for _, u := range users {
		if u.ID == viewerID {
			viewer = u
		} else {
			other = u
		}
	}
	if viewer == nil || other == nil {
		return nil, models.NotFound("participant not found")
	}

	messages, err := s.messages.ListByConversation(ctx, conv.ID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	return BuildView(conv, viewer, other, messages), nil
}

func (s *DisclosureService) publish(ctx context.Context, conv *models.Conversation) {
	if s.publisher == nil {
		return
	}
	for _, uid := range conv.Participants {
		if !s.publisher.IsSubscribed(uid, conv.ID) {
			continue
		}
		view, err := s.snapshot(ctx, conv, uid)
		if err != nil {
			log.Error().Err(err).Str("conversation_id", conv.ID).Str("user_id", uid).Msg("Failed to build snapshot")
			continue
		}
		msg := WSMessage{
			Type:           WSTypeConversationSnapshot,
			ConversationID: conv.ID,
			Data:           view,
		}
		if err := s.publisher.SendToUser(uid, msg); err != nil {
			log.Error().Err(err).Str("user_id", uid).Msg("Failed to send conversation snapshot")
		}
	}
}
