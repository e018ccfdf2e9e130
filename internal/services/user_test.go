package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"anon-social-backend/internal/models"
)

func TestRegister(t *testing.T) {
	store := newMemStore()
	store.addUser("taken", "Taken", models.GenderMale)
	svc := NewUserService(store.profiles())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	valid := RegisterRequest{
		Name:    " Alice ",
		Gender:  "Female",
		College: "State",
		Email:   "Alice@State.edu",
		Phone:   "+1 555 123 4567",
	}

	tests := []struct {
		name     string
		identity Identity
		mutate   func(*RegisterRequest)
		wantErr  error
	}{
		{name: "unverified", identity: Identity{UserID: "u1"}, wantErr: models.ErrForbidden},
		{name: "missing college", identity: Identity{UserID: "u1", Verified: true}, mutate: func(r *RegisterRequest) { r.College = "" }, wantErr: models.ErrValidation},
		{name: "bad gender", identity: Identity{UserID: "u1", Verified: true}, mutate: func(r *RegisterRequest) { r.Gender = "robot" }, wantErr: models.ErrValidation},
		{name: "bad phone", identity: Identity{UserID: "u1", Verified: true}, mutate: func(r *RegisterRequest) { r.Phone = "12" }, wantErr: models.ErrValidation},
		{name: "bad email", identity: Identity{UserID: "u1", Verified: true}, mutate: func(r *RegisterRequest) { r.Email = "not-an-email" }, wantErr: models.ErrValidation},
		{name: "email taken", identity: Identity{UserID: "u1", Verified: true}, mutate: func(r *RegisterRequest) { r.Email = "taken@state.edu" }, wantErr: models.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			if _, err := svc.Register(ctx, tt.identity, req); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	user, err := svc.Register(ctx, Identity{UserID: "u1", Verified: true}, valid)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if user.Name != "Alice" || user.Gender != models.GenderFemale || user.Email != "alice@state.edu" || user.Phone != "+15551234567" {
		t.Fatalf("profile not normalized: %+v", user)
	}
	if user.Friends == nil || user.SentRequests == nil || user.ReceivedRequests == nil {
		t.Fatalf("relationship sets should start empty, not nil")
	}

	if _, err := svc.Register(ctx, Identity{UserID: "u2", Verified: true}, valid); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("duplicate phone: expected ErrInvalidState, got %v", err)
	}
}

func TestDiscoverAnnotatesRelation(t *testing.T) {
	store := newMemStore()
	store.addUser("alice", "Alice", models.GenderFemale)
	store.addUser("bob", "Bob", models.GenderMale, "alice")
	store.addUser("carol", "Carol", models.GenderFemale)
	store.addUser("dave", "Dave", models.GenderMale)
	graph := NewFriendGraphService(store.profiles(), nil, nil)
	svc := NewUserService(store.profiles())
	ctx := context.Background()

	if err := graph.SendRequest(ctx, "alice", "carol"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	if err := graph.SendRequest(ctx, "dave", "alice"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}

	found, err := svc.Discover(ctx, "alice")
	if err != nil {
		t.Fatalf("Discover error: %v", err)
	}

	want := map[string]models.Relation{
		"bob":   models.RelationFriend,
		"carol": models.RelationOutgoing,
		"dave":  models.RelationIncoming,
	}
	if len(found) != len(want) {
		t.Fatalf("expected %d users, got %d", len(want), len(found))
	}
	for _, u := range found {
		if want[u.ID] != u.Relation {
			t.Fatalf("relation of %s = %s, want %s", u.ID, u.Relation, want[u.ID])
		}
	}
}

func TestUpdatePushToken(t *testing.T) {
	store := newMemStore()
	store.addUser("alice", "Alice", models.GenderFemale)
	svc := NewUserService(store.profiles())
	ctx := context.Background()

	if err := svc.UpdatePushToken(ctx, "alice", " device-token "); err != nil {
		t.Fatalf("UpdatePushToken error: %v", err)
	}
	if tok := store.user(t, "alice").PushToken; tok == nil || *tok != "device-token" {
		t.Fatalf("expected token stored, got %v", tok)
	}

	if err := svc.UpdatePushToken(ctx, "alice", ""); err != nil {
		t.Fatalf("UpdatePushToken error: %v", err)
	}
	if tok := store.user(t, "alice").PushToken; tok != nil {
		t.Fatalf("empty token should clear, got %q", *tok)
	}
}
