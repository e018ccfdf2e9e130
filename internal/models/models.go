package models

import (
	"encoding/json"
	"slices"
	"time"
)

// AnonymousName is the display marker shown for undisclosed participants
const AnonymousName = "Anonymous"

// Gender is the gender stored on a user profile
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

// Valid reports whether g is one of the known genders
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// GenderFilter selects snap recipients by gender
type GenderFilter string

const (
	FilterMale   GenderFilter = "male"
	FilterFemale GenderFilter = "female"
	FilterBoth   GenderFilter = "both"
)

// Valid reports whether f is one of the known filters
func (f GenderFilter) Valid() bool {
	switch f {
	case FilterMale, FilterFemale, FilterBoth:
		return true
	}
	return false
}

// Matches reports whether a user of gender g passes the filter
func (f GenderFilter) Matches(g Gender) bool {
	if f == FilterBoth {
		return true
	}
	return string(f) == string(g)
}

// User represents a registered user profile
type User struct {
	ID               string    `json:"uid"`
	Name             string    `json:"name"`
	Gender           Gender    `json:"gender"`
	College          string    `json:"college"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	Friends          []string  `json:"friends"`
	SentRequests     []string  `json:"sentRequests"`
	ReceivedRequests []string  `json:"receivedRequests"`
	PushToken        *string   `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// IsFriend reports whether uid is in the user's friend set
func (u *User) IsFriend(uid string) bool { return slices.Contains(u.Friends, uid) }

// HasSentTo reports whether the user has a pending request to uid
func (u *User) HasSentTo(uid string) bool { return slices.Contains(u.SentRequests, uid) }

// HasReceivedFrom reports whether uid has a pending request to the user
func (u *User) HasReceivedFrom(uid string) bool { return slices.Contains(u.ReceivedRequests, uid) }

// AddFriend adds uid to the friend set
func (u *User) AddFriend(uid string) { u.Friends = addID(u.Friends, uid) }

// RemoveFriend removes uid from the friend set
func (u *User) RemoveFriend(uid string) { u.Friends = removeID(u.Friends, uid) }

// AddSent records a pending request to uid
func (u *User) AddSent(uid string) { u.SentRequests = addID(u.SentRequests, uid) }

// RemoveSent drops a pending request to uid
func (u *User) RemoveSent(uid string) { u.SentRequests = removeID(u.SentRequests, uid) }

// AddReceived records a pending request from uid
func (u *User) AddReceived(uid string) { u.ReceivedRequests = addID(u.ReceivedRequests, uid) }

// RemoveReceived drops a pending request from uid
func (u *User) RemoveReceived(uid string) { u.ReceivedRequests = removeID(u.ReceivedRequests, uid) }

// Summary returns the public part of the profile
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Gender: u.Gender, College: u.College}
}

func addID(set []string, id string) []string {
	if slices.Contains(set, id) {
		return set
	}
	return append(set, id)
}

func removeID(set []string, id string) []string {
	return slices.DeleteFunc(set, func(v string) bool { return v == id })
}

// UserSummary is the profile subset shown to other users
type UserSummary struct {
	ID      string `json:"uid"`
	Name    string `json:"name"`
	Gender  Gender `json:"gender"`
	College string `json:"college"`
}

// Relation describes how a user relates to the viewer
type Relation string

const (
	RelationNone     Relation = "none"
	RelationFriend   Relation = "friend"
	RelationIncoming Relation = "incoming"
	RelationOutgoing Relation = "outgoing"
)

// DiscoveredUser is a same-college user annotated with the viewer relation
type DiscoveredUser struct {
	UserSummary
	Relation Relation `json:"relation"`
}

// FriendsOverview lists a user's friends and pending requests
type FriendsOverview struct {
	Friends  []UserSummary `json:"friends"`
	Incoming []UserSummary `json:"incoming_requests"`
	Outgoing []UserSummary `json:"outgoing_requests"`
}

// PairMutation is applied to two user records inside one transaction.
// Returning an error aborts the whole transaction.
type PairMutation struct {
	Apply func(a, b *User) error
	// Conversation, when set, runs before Apply with the pair's conversation as
	// read inside the same transaction, or nil if the pair has none
	Conversation func(conv *Conversation) error
	// DropConversation deletes the pair's conversation and messages in the same transaction
	DropConversation bool
}

// Disclosure is one participant's reveal state within a conversation
type Disclosure struct {
	Revealed bool
	Name     string
}

// Conversation represents the single chat between an unordered pair of users
type Conversation struct {
	ID           string
	Participants [2]string
	Disclosure   map[string]Disclosure
	IsAnonymous  bool
	CreatedAt    time.Time
}

// CanonicalPair orders two user ids so that every unordered pair has one key
func CanonicalPair(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

// Has reports whether uid participates in the conversation
func (c *Conversation) Has(uid string) bool {
	return c.Participants[0] == uid || c.Participants[1] == uid
}

// Other returns the participant that is not uid
func (c *Conversation) Other(uid string) string {
	if c.Participants[0] == uid {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// RevealedBy reports whether uid has revealed in this conversation
func (c *Conversation) RevealedBy(uid string) bool {
	return c.Disclosure[uid].Revealed
}

// BothRevealed reports whether both participants have revealed
func (c *Conversation) BothRevealed() bool {
	return c.RevealedBy(c.Participants[0]) && c.RevealedBy(c.Participants[1])
}

// MarshalJSON renders the stored record shape with per-participant keys
func (c Conversation) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"id":           c.ID,
		"participants": c.Participants,
		"isAnonymous":  c.IsAnonymous,
		"createdAt":    c.CreatedAt,
	}
	for _, uid := range c.Participants {
		d := c.Disclosure[uid]
		out[uid+"_revealed"] = d.Revealed
		out[uid+"_name"] = d.Name
	}
	return json.Marshal(out)
}

// Message represents a single message in a conversation
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"-"`
	Text           string    `json:"text"`
	ImageBase64    string    `json:"imageBase64,omitempty"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName"`
	IsAnonymous    bool      `json:"isAnonymous"`
	Timestamp      time.Time `json:"timestamp"`
	DedupeKey      string    `json:"-"`
}

// BoundingBox is a face region reported by the media gate
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DeliveryOutcome is the result of one snap delivery
type DeliveryOutcome struct {
	RecipientID    string `json:"recipient_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Delivered      bool   `json:"delivered"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Error          string `json:"error,omitempty"`
}

// FanoutReport summarizes a snap broadcast
type FanoutReport struct {
	SnapID    string            `json:"snap_id"`
	Outcomes  []DeliveryOutcome `json:"outcomes"`
	Delivered int               `json:"delivered"`
	Failed    int               `json:"failed"`
	SentAt    time.Time         `json:"sent_at"`
}

// Partial reports whether some deliveries failed
func (r *FanoutReport) Partial() bool {
	return r.Failed > 0
}
