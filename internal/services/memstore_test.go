package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"anon-social-backend/internal/models"
)

// memStore is an in-memory stand-in for the Postgres repositories. Records
// are copied in and out so callers never share state with the store.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	convs    map[string]*models.Conversation
	messages map[string][]*models.Message
	dedupe   map[string]struct{}
	seq      int
	clock    time.Time

	// failCreateFor makes message inserts into conversations with these peers fail
	failCreateFor map[string]bool
	getByIDsCalls int
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*models.User),
		convs:         make(map[string]*models.Conversation),
		messages:      make(map[string][]*models.Message),
		dedupe:        make(map[string]struct{}),
		failCreateFor: make(map[string]bool),
		clock:         time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func copyUser(u *models.User) *models.User {
	c := *u
	c.Friends = slices.Clone(u.Friends)
	c.SentRequests = slices.Clone(u.SentRequests)
	c.ReceivedRequests = slices.Clone(u.ReceivedRequests)
	return &c
}

func copyConv(c *models.Conversation) *models.Conversation {
	out := *c
	out.Disclosure = make(map[string]models.Disclosure, len(c.Disclosure))
	for k, v := range c.Disclosure {
		out.Disclosure[k] = v
	}
	return &out
}

func (m *memStore) addUser(id, name string, gender models.Gender, friends ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{
		ID:               id,
		Name:             name,
		Gender:           gender,
		College:          "State",
		Email:            id + "@state.edu",
		Phone:            "+1555000" + fmt.Sprintf("%04d", len(m.users)),
		Friends:          []string{},
		SentRequests:     []string{},
		ReceivedRequests: []string{},
	}
	for _, f := range friends {
		m.users[id].AddFriend(f)
		if other, ok := m.users[f]; ok {
			other.AddFriend(id)
		}
	}
}

func (m *memStore) user(t *testing.T, id string) *models.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		t.Fatalf("user %s not found", id)
	}
	return copyUser(u)
}

func (m *memStore) profiles() *memProfiles           { return &memProfiles{m} }
func (m *memStore) conversations() *memConversations { return &memConversations{m} }
func (m *memStore) msgs() *memMessages               { return &memMessages{m} }

func (m *memStore) messageCount(convID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages[convID])
}

func (m *memStore) pairConversation(a, b string) *models.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	pair := models.CanonicalPair(a, b)
	for _, c := range m.convs {
		if c.Participants == pair {
			return copyConv(c)
		}
	}
	return nil
}

type memProfiles struct{ m *memStore }

func (p *memProfiles) Create(ctx context.Context, user *models.User) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	if _, ok := p.m.users[user.ID]; ok {
		return models.InvalidState("user already exists")
	}
	p.m.users[user.ID] = copyUser(user)
	return nil
}

func (p *memProfiles) GetByID(ctx context.Context, id string) (*models.User, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	u, ok := p.m.users[id]
	if !ok {
		return nil, models.NotFound("user not found")
	}
	return copyUser(u), nil
}

func (p *memProfiles) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.m.getByIDsCalls++
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := p.m.users[id]; ok {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (p *memProfiles) ListByCollege(ctx context.Context, college, excludeID string) ([]*models.User, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	var out []*models.User
	for _, u := range p.m.users {
		if u.College == college && u.ID != excludeID {
			out = append(out, copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *memProfiles) EmailExists(ctx context.Context, email string) (bool, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for _, u := range p.m.users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (p *memProfiles) PhoneExists(ctx context.Context, phone string) (bool, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for _, u := range p.m.users {
		if u.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (p *memProfiles) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	u, ok := p.m.users[userID]
	if !ok {
		return models.NotFound("user not found")
	}
	u.PushToken = pushToken
	return nil
}

// MutatePair applies the mutation to copies and commits both or neither
func (p *memProfiles) MutatePair(ctx context.Context, aID, bID string, mut models.PairMutation) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	a, ok := p.m.users[aID]
	if !ok {
		return models.NotFound("user not found")
	}
	b, ok := p.m.users[bID]
	if !ok {
		return models.NotFound("user not found")
	}

	if mut.Conversation != nil {
		var conv *models.Conversation
		pair := models.CanonicalPair(aID, bID)
		for _, c := range p.m.convs {
			if c.Participants == pair {
				conv = copyConv(c)
			}
		}
		if err := mut.Conversation(conv); err != nil {
			return err
		}
	}

	ac, bc := copyUser(a), copyUser(b)
	if err := mut.Apply(ac, bc); err != nil {
		return err
	}
	p.m.users[aID], p.m.users[bID] = ac, bc

	if mut.DropConversation {
		pair := models.CanonicalPair(aID, bID)
		for id, c := range p.m.convs {
			if c.Participants == pair {
				delete(p.m.convs, id)
				delete(p.m.messages, id)
			}
		}
	}
	return nil
}

type memConversations struct{ m *memStore }

func (c *memConversations) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	conv, ok := c.m.convs[id]
	if !ok {
		return nil, models.NotFound("conversation not found")
	}
	return copyConv(conv), nil
}

func (c *memConversations) GetByPair(ctx context.Context, a, b string) (*models.Conversation, error) {
	if conv := c.m.pairConversation(a, b); conv != nil {
		return conv, nil
	}
	return nil, models.NotFound("conversation not found")
}

func (c *memConversations) GetOrCreate(ctx context.Context, a, b string, anonymous bool) (*models.Conversation, bool, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	pair := models.CanonicalPair(a, b)
	for _, conv := range c.m.convs {
		if conv.Participants == pair {
			return copyConv(conv), false, nil
		}
	}
	c.m.seq++
	conv := &models.Conversation{
		ID:           fmt.Sprintf("conv-%d", c.m.seq),
		Participants: pair,
		Disclosure:   map[string]models.Disclosure{},
		IsAnonymous:  anonymous,
		CreatedAt:    c.m.clock,
	}
	c.m.convs[conv.ID] = conv
	return copyConv(conv), true, nil
}

func (c *memConversations) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	var out []*models.Conversation
	for _, conv := range c.m.convs {
		if conv.Has(userID) {
			out = append(out, copyConv(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *memConversations) UpdateDisclosure(ctx context.Context, id string, fn func(*models.Conversation) error) (*models.Conversation, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	conv, ok := c.m.convs[id]
	if !ok {
		return nil, models.NotFound("conversation not found")
	}
	updated := copyConv(conv)
	if err := fn(updated); err != nil {
		return nil, err
	}
	c.m.convs[id] = copyConv(updated)
	return updated, nil
}

type memMessages struct{ m *memStore }

func (s *memMessages) Create(ctx context.Context, msg *models.Message) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	conv, ok := s.m.convs[msg.ConversationID]
	if !ok {
		return false, models.NotFound("conversation not found")
	}
	if s.m.failCreateFor[conv.Other(msg.SenderID)] {
		return false, fmt.Errorf("insert failed: %w", models.ErrTransientStore)
	}
	if msg.DedupeKey != "" {
		if _, dup := s.m.dedupe[msg.DedupeKey]; dup {
			return false, nil
		}
		s.m.dedupe[msg.DedupeKey] = struct{}{}
	}
	s.m.clock = s.m.clock.Add(time.Minute)
	msg.Timestamp = s.m.clock
	stored := *msg
	s.m.messages[msg.ConversationID] = append(s.m.messages[msg.ConversationID], &stored)
	return true, nil
}

func (s *memMessages) ListByConversation(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	all := s.m.messages[conversationID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]*models.Message, 0, len(all))
	for _, msg := range all {
		c := *msg
		out = append(out, &c)
	}
	return out, nil
}

// stubPublisher records events instead of writing to sockets
type stubPublisher struct {
	mu         sync.Mutex
	online     map[string]bool
	subscribed map[string]map[string]bool
	sent       map[string][]WSMessage
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{
		online:     make(map[string]bool),
		subscribed: make(map[string]map[string]bool),
		sent:       make(map[string][]WSMessage),
	}
}

func (p *stubPublisher) subscribe(userID, convID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = true
	if p.subscribed[userID] == nil {
		p.subscribed[userID] = make(map[string]bool)
	}
	p.subscribed[userID][convID] = true
}

func (p *stubPublisher) SendToUser(userID string, message WSMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent[userID] = append(p.sent[userID], message)
	return nil
}

func (p *stubPublisher) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online[userID]
}

func (p *stubPublisher) IsSubscribed(userID, conversationID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribed[userID][conversationID]
}

func (p *stubPublisher) events(userID, typ string) []WSMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []WSMessage
	for _, m := range p.sent[userID] {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// stubNotifier counts push notifications
type stubNotifier struct {
	mu             sync.Mutex
	friendRequests []string
	snaps          []string
	err            error
}

func (n *stubNotifier) NotifyFriendRequest(ctx context.Context, to, from *models.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.friendRequests = append(n.friendRequests, to.ID)
	return n.err
}

func (n *stubNotifier) NotifySnap(ctx context.Context, to *models.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.snaps = append(n.snaps, to.ID)
	return n.err
}

var (
	_ ProfileStore          = (*memProfiles)(nil)
	_ ConversationStore     = (*memConversations)(nil)
	_ MessageStore          = (*memMessages)(nil)
	_ EventPublisher        = (*stubPublisher)(nil)
	_ EventPublisher        = (*WSHub)(nil)
	_ Notifier              = (*stubNotifier)(nil)
	_ Notifier              = (*APNSNotifier)(nil)
	_ MediaArchive          = (*S3Archive)(nil)
	_ FaceDetector          = (*HTTPFaceDetector)(nil)
	_ ConversationPublisher = (*DisclosureService)(nil)
	_ IdentityProvider      = (*JWTIdentity)(nil)
)
