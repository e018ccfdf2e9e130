package services

import (
	"context"
	"fmt"

	"anon-social-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNSNotifier delivers push notifications through Apple Push Notification service
type APNSNotifier struct {
	client *apns2.Client
	topic  string
}

// NewAPNSNotifier creates a notifier authenticated with a .p8 signing key
func NewAPNSNotifier(keyFile, keyID, teamID, topic string, production bool) (*APNSNotifier, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSNotifier{client: client, topic: topic}, nil
}

// NotifyFriendRequest tells a user someone sent them a friend request
func (n *APNSNotifier) NotifyFriendRequest(ctx context.Context, to, from *models.User) error {
	p := payload.NewPayload().
		AlertTitle("Friend request").
		AlertBody(from.Name + " sent you a friend request.").
		Custom("type", "friend_request").
		Custom("from_uid", from.ID)
	return n.push(ctx, to, p)
}

// NotifySnap tells a user an anonymous snap arrived
func (n *APNSNotifier) NotifySnap(ctx context.Context, to *models.User) error {
	p := payload.NewPayload().
		AlertTitle("New snap").
		AlertBody("Someone sent you an anonymous snap.").
		Custom("type", "snap")
	return n.push(ctx, to, p)
}

func (n *APNSNotifier) push(ctx context.Context, to *models.User, p *payload.Payload) error {
	if to.PushToken == nil || *to.PushToken == "" {
		return nil
	}

	res, err := n.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: *to.PushToken,
		Topic:       n.topic,
		Payload:     p,
	})
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}

	log.Debug().Str("user_id", to.ID).Str("apns_id", res.ApnsID).Msg("Push notification sent")
	return nil
}

// NopNotifier drops every notification
type NopNotifier struct{}

func (NopNotifier) NotifyFriendRequest(context.Context, *models.User, *models.User) error { return nil }
func (NopNotifier) NotifySnap(context.Context, *models.User) error                       { return nil }
