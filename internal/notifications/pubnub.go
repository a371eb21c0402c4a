package notifications

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// PubNubConfig holds the keys of the push transport
type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

// PubNubDeliverer publishes notification payloads on PubNub channels that
// patron, merchant and kitchen clients subscribe to
type PubNubDeliverer struct {
	pn *pubnub.PubNub
}

func NewPubNubDeliverer(cfg PubNubConfig) *PubNubDeliverer {
	userID := cfg.UserID
	if userID == "" {
		userID = "seatnext-server"
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey

	return &PubNubDeliverer{pn: pubnub.NewPubNub(pnConfig)}
}

func (d *PubNubDeliverer) Deliver(ctx context.Context, n *PushNotification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, status, err := d.pn.Publish().
		Channel(n.Channel).
		Message(n.Payload()).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.Channel, err)
	}
	if status.Error != nil {
		return fmt.Errorf("pubnub rejected publish to %s: %w", n.Channel, status.Error)
	}
	return nil
}
