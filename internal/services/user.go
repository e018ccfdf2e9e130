package services

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"anon-social-backend/internal/models"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// UserService handles profile registration and lookup
type UserService struct {
	users ProfileStore
	now   func() time.Time
}

// NewUserService creates a new user service
func NewUserService(users ProfileStore) *UserService {
	return &UserService{
		users: users,
		now:   time.Now,
	}
}

// RegisterRequest completes a profile for an authenticated identity
type RegisterRequest struct {
	Name    string        `json:"name"`
	Gender  models.Gender `json:"gender"`
	College string        `json:"college"`
	Email   string        `json:"email"`
	Phone   string        `json:"phone"`
}

func (r *RegisterRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.College = strings.TrimSpace(r.College)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.ReplaceAll(strings.TrimSpace(r.Phone), " ", "")
	r.Gender = models.Gender(strings.ToLower(string(r.Gender)))
}

func (r *RegisterRequest) validate() error {
	switch {
	case r.Name == "" || r.College == "" || r.Email == "" || r.Phone == "" || r.Gender == "":
		return models.Validation("name, gender, college, email and phone are required")
	case !r.Gender.Valid():
		return models.Validation("gender must be male, female or other")
	case !phonePattern.MatchString(r.Phone):
		return models.Validation("phone number is invalid")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return models.Validation("email address is invalid")
	}
	return nil
}

// Register creates the profile of a verified identity
func (s *UserService) Register(ctx context.Context, identity Identity, req RegisterRequest) (*models.User, error) {
	if !identity.Verified {
		return nil, models.Forbidden("verify your email before completing registration")
	}

	req.normalize()
	if err := req.validate(); err != nil {
		return nil, err
	}

	exists, err := s.users.PhoneExists(ctx, req.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to check phone: %w", err)
	}
	if exists {
		return nil, models.InvalidState("an account with this phone number already exists")
	}

	exists, err = s.users.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists {
		return nil, models.InvalidState("an account with this email already exists")
	}

	user := &models.User{
		ID:               identity.UserID,
		Name:             req.Name,
		Gender:           req.Gender,
		College:          req.College,
		Email:            req.Email,
		Phone:            req.Phone,
		Friends:          []string{},
		SentRequests:     []string{},
		ReceivedRequests: []string{},
		CreatedAt:        s.now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUser returns a user's own profile
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// Discover lists users at the same college with their relation to the viewer
func (s *UserService) Discover(ctx context.Context, userID string) ([]models.DiscoveredUser, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	peers, err := s.users.ListByCollege(ctx, me.College, me.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list college users: %w", err)
	}

	out := make([]models.DiscoveredUser, 0, len(peers))
	for _, peer := range peers {
		out = append(out, models.DiscoveredUser{
			UserSummary: peer.Summary(),
			Relation:    RelationOf(me, peer.ID),
		})
	}
	return out, nil
}

// RelationOf describes how uid relates to user
func RelationOf(user *models.User, uid string) models.Relation {
	switch {
	case user.IsFriend(uid):
		return models.RelationFriend
	case user.HasReceivedFrom(uid):
		return models.RelationIncoming
	case user.HasSentTo(uid):
		return models.RelationOutgoing
	}
	return models.RelationNone
}

// UpdatePushToken stores or clears the device push token of a user
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	pushToken = strings.TrimSpace(pushToken)
	var tokenPtr *string
	if pushToken != "" {
		tokenPtr = &pushToken
	}
	return s.users.UpdatePushToken(ctx, userID, tokenPtr)
}
