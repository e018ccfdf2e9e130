package services

import (
	"context"
	"errors"
	"slices"
	"testing"

	"anon-social-backend/internal/models"
)

func newGraphFixture(t *testing.T) (*memStore, *FriendGraphService, *stubPublisher, *stubNotifier) {
	t.Helper()
	store := newMemStore()
	store.addUser("alice", "Alice", models.GenderFemale)
	store.addUser("bob", "Bob", models.GenderMale)
	pub := newStubPublisher()
	notifier := &stubNotifier{}
	return store, NewFriendGraphService(store.profiles(), pub, notifier), pub, notifier
}

func TestSendRequestRecordsBothSides(t *testing.T) {
	store, graph, _, notifier := newGraphFixture(t)
	ctx := context.Background()

	if err := graph.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}

	alice, bob := store.user(t, "alice"), store.user(t, "bob")
	if !alice.HasSentTo("bob") {
		t.Fatalf("expected bob in alice.sentRequests, got %v", alice.SentRequests)
	}
	if !bob.HasReceivedFrom("alice") {
		t.Fatalf("expected alice in bob.receivedRequests, got %v", bob.ReceivedRequests)
	}
	if len(notifier.friendRequests) != 1 || notifier.friendRequests[0] != "bob" {
		t.Fatalf("expected one notification to bob, got %v", notifier.friendRequests)
	}

	err := graph.SendRequest(ctx, "alice", "bob")
	if !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on duplicate request, got %v", err)
	}
	if got := store.user(t, "alice").SentRequests; len(got) != 1 {
		t.Fatalf("expected a single pending request, got %v", got)
	}
}

func TestSendRequestRejectsInvalidTargets(t *testing.T) {
	store, graph, _, _ := newGraphFixture(t)
	store.addUser("carol", "Carol", models.GenderFemale, "alice")
	ctx := context.Background()

	if err := graph.SendRequest(ctx, "alice", "alice"); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("self request: expected ErrInvalidState, got %v", err)
	}
	if err := graph.SendRequest(ctx, "alice", "carol"); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("request to friend: expected ErrInvalidState, got %v", err)
	}
	if err := graph.SendRequest(ctx, "alice", "nobody"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("request to unknown user: expected ErrNotFound, got %v", err)
	}

	if err := graph.SendRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	if err := graph.SendRequest(ctx, "alice", "bob"); !errors.Is(err, models.ErrInvalidState) {
		t.Fatalf("crossing request: expected ErrInvalidState, got %v", err)
	}
}

func TestAcceptRequestCreatesSymmetricEdge(t *testing.T) {
	store, graph, pub, _ := newGraphFixture(t)
	ctx := context.Background()

	if err := graph.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	pub.online["alice"] = true
	if err := graph.AcceptRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("AcceptRequest error: %v", err)
	}

	alice, bob := store.user(t, "alice"), store.user(t, "bob")
	if !alice.IsFriend("bob") || !bob.IsFriend("alice") {
		t.Fatalf("expected symmetric friendship, got alice=%v bob=%v", alice.Friends, bob.Friends)
	}
	if len(alice.SentRequests) != 0 || len(alice.ReceivedRequests) != 0 ||
		len(bob.SentRequests) != 0 || len(bob.ReceivedRequests) != 0 {
		t.Fatalf("expected no pending requests, got alice=%v/%v bob=%v/%v",
			alice.SentRequests, alice.ReceivedRequests, bob.SentRequests, bob.ReceivedRequests)
	}

	if got := pub.events("alice", WSTypeFriendsChanged); len(got) != 1 {
		t.Fatalf("expected one friends_changed event for alice, got %d", len(got))
	}
	if got := pub.events("bob", WSTypeFriendsChanged); len(got) != 0 {
		t.Fatalf("expected no events for offline bob, got %d", len(got))
	}
}

func TestAcceptWithoutRequestIsNotFound(t *testing.T) {
	store, graph, _, _ := newGraphFixture(t)

	err := graph.AcceptRequest(context.Background(), "bob", "alice")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.user(t, "bob").IsFriend("alice") {
		t.Fatalf("failed accept must not create an edge")
	}
}

func TestCancelAndRejectClearPendingRequest(t *testing.T) {
	store, graph, _, _ := newGraphFixture(t)
	ctx := context.Background()

	if err := graph.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	if err := graph.CancelRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("CancelRequest error: %v", err)
	}
	if store.user(t, "alice").HasSentTo("bob") || store.user(t, "bob").HasReceivedFrom("alice") {
		t.Fatalf("cancel left a pending request behind")
	}
	if err := graph.CancelRequest(ctx, "alice", "bob"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("second cancel: expected ErrNotFound, got %v", err)
	}

	if err := graph.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	if err := graph.RejectRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("RejectRequest error: %v", err)
	}
	alice, bob := store.user(t, "alice"), store.user(t, "bob")
	if alice.HasSentTo("bob") || bob.HasReceivedFrom("alice") || alice.IsFriend("bob") {
		t.Fatalf("reject should clear the request without befriending")
	}
}

func TestUnfriendDropsConversation(t *testing.T) {
	store, graph, _, _ := newGraphFixture(t)
	store.addUser("carol", "Carol", models.GenderFemale, "alice")
	ctx := context.Background()

	conv, _, err := store.conversations().GetOrCreate(ctx, "carol", "alice", false)
	if err != nil {
		t.Fatalf("GetOrCreate error: %v", err)
	}
	if _, err := store.msgs().Create(ctx, &models.Message{ID: "m1", ConversationID: conv.ID, Text: "hi", SenderID: "carol"}); err != nil {
		t.Fatalf("Create message error: %v", err)
	}

	if err := graph.Unfriend(ctx, "alice", "carol"); err != nil {
		t.Fatalf("Unfriend error: %v", err)
	}

	if store.user(t, "alice").IsFriend("carol") || store.user(t, "carol").IsFriend("alice") {
		t.Fatalf("expected the edge removed on both sides")
	}
	if _, err := store.conversations().GetByID(ctx, conv.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected conversation to be gone, got %v", err)
	}
	if n := store.messageCount(conv.ID); n != 0 {
		t.Fatalf("expected messages to be gone, got %d", n)
	}

	if err := graph.Unfriend(ctx, "alice", "carol"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("second unfriend: expected ErrNotFound, got %v", err)
	}
}

func TestEnsureFriendsIsIdempotent(t *testing.T) {
	store, graph, pub, _ := newGraphFixture(t)
	ctx := context.Background()

	if err := graph.SendRequest(ctx, "bob", "alice"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}

	created, err := graph.EnsureFriends(ctx, "alice", "bob")
	if err != nil || !created {
		t.Fatalf("first EnsureFriends = %v, %v; want true, nil", created, err)
	}

	pub.online["alice"] = true
	pub.online["bob"] = true
	created, err = graph.EnsureFriends(ctx, "bob", "alice")
	if err != nil || created {
		t.Fatalf("second EnsureFriends = %v, %v; want false, nil", created, err)
	}
	if n := len(pub.events("alice", WSTypeFriendsChanged)) + len(pub.events("bob", WSTypeFriendsChanged)); n != 0 {
		t.Fatalf("an existing edge must not announce a change, got %d events", n)
	}

	alice := store.user(t, "alice")
	if len(alice.Friends) != 1 || len(alice.ReceivedRequests) != 0 {
		t.Fatalf("unexpected alice state: friends=%v received=%v", alice.Friends, alice.ReceivedRequests)
	}
	if friends, _ := graph.AreFriends(ctx, "bob", "alice"); !friends {
		t.Fatalf("expected AreFriends to report true")
	}
}

func TestOverviewGroupsRelations(t *testing.T) {
	store, graph, _, _ := newGraphFixture(t)
	store.addUser("carol", "Carol", models.GenderFemale, "alice")
	store.addUser("dave", "Dave", models.GenderMale)
	ctx := context.Background()

	if err := graph.SendRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}
	if err := graph.SendRequest(ctx, "dave", "alice"); err != nil {
		t.Fatalf("SendRequest error: %v", err)
	}

	overview, err := graph.Overview(ctx, "alice")
	if err != nil {
		t.Fatalf("Overview error: %v", err)
	}

	ids := func(in []models.UserSummary) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			out = append(out, s.ID)
		}
		return out
	}
	if got := ids(overview.Friends); !slices.Equal(got, []string{"carol"}) {
		t.Fatalf("friends = %v", got)
	}
	if got := ids(overview.Incoming); !slices.Equal(got, []string{"dave"}) {
		t.Fatalf("incoming = %v", got)
	}
	if got := ids(overview.Outgoing); !slices.Equal(got, []string{"bob"}) {
		t.Fatalf("outgoing = %v", got)
	}
}
