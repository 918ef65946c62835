package medium

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"wisdomwalk/config"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/utilities"
)

type FirebaseModel struct {
	fcmClient *messaging.Client
}

func NewFirebaseClient(ctx context.Context, conf config.Firebase) (*FirebaseModel, error) {
	opt := option.WithCredentialsFile(conf.Path)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to created new app with config path %s: %w", conf.Path, err)
	}

	fcmClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to created new messaging client: %w", err)
	}

	return &FirebaseModel{fcmClient: fcmClient}, nil
}

// NotificationMessage builds the push payload of a notification record.
func NotificationMessage(n *entities.Notification) messaging.Message {
	data := map[string]string{
		"id":   n.ID,
		"type": n.Type,
	}
	if n.RelatedConversation != "" {
		data["conversation_id"] = n.RelatedConversation
	}
	if n.RelatedGroup != "" {
		data["group_id"] = n.RelatedGroup
	}

	return messaging.Message{
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: data,
	}
}

func (fb *FirebaseModel) PushNotification(ctx context.Context, n *entities.Notification, deviceIDs []string) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	return fb.PushMessageToClient(ctx, n.Recipient, NotificationMessage(n), deviceIDs)
}

func (fb *FirebaseModel) PushMessageToClient(ctx context.Context, receiver string, msg messaging.Message, deviceIDs []string) error {
	log := utilities.NewLoggerWithFields(
		"firebase.PushMessageToClient", map[string]interface{}{
			"receiver": receiver,
		},
	)

	var messages []*messaging.Message
	for _, deviceID := range deviceIDs {
		newMsg := msg
		newMsg.Token = deviceID
		messages = append(messages, &newMsg)
	}

	resp, err := fb.fcmClient.SendEach(ctx, messages)
	if err != nil {
		return err
	}

	if resp.FailureCount > 0 {
		for _, errResp := range resp.Responses {
			if errResp != nil && errResp.Error != nil {
				log.WithError(errResp.Error).Errorf("failed to push firebase notification to %s", receiver)
			}
		}
	}

	log.Debugf("firebase notification pushed to %s for %d device IDs", receiver, len(deviceIDs))

	return nil
}
