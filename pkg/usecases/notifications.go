package usecases

import (
	"context"
	"encoding/json"
	"errors"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
	"wisdomwalk/pkg/repo/driver/medium"
	"wisdomwalk/utilities"
)

const deliveryQueueSize = 256

// Notifier is what the chat and group flows need from the notification
// fan-out.
type Notifier interface {
	Dispatch(context.Context, entities.NotificationEvent, []entities.FanOutTarget)
}

// Pusher delivers a notification to the recipient's devices.
type Pusher interface {
	PushNotification(ctx context.Context, n *entities.Notification, deviceIDs []string) error
}

// Mailer queues a notification email.
type Mailer interface {
	Enqueue(medium.MailJob) bool
}

// LiveNotifier writes frames to the open gateway connections of a user.
type LiveNotifier interface {
	IsOnline(user string) bool
	PushMessage(user string, data []byte, broadcast bool) error
}

type NotificationUsecases struct {
	repo       repo.NotificationRepoImply
	userRepo   repo.UserRepoImply
	pusher     Pusher
	mailer     Mailer
	live       LiveNotifier
	emailTypes map[string]bool
	deliveries chan []*entities.Notification
	pageSize   int
}

type NotificationUsecaseImply interface {
	Notifier
	GetNotifications(ctx context.Context, user string, pageSize int, pageState []byte) (
		[]*entities.Notification, []byte, error,
	)
	UnreadCount(ctx context.Context, user string) (int, error)
	MarkRead(ctx context.Context, user, id string) error
	MarkAllRead(ctx context.Context, user string) (int, error)
	DeleteNotification(ctx context.Context, user, id string) error
	NotificationProcessor(ctx context.Context)
}

// NewNotificationUsecases creates the notification use cases. pusher, mailer
// and live are optional.
func NewNotificationUsecases(
	notificationRepo repo.NotificationRepoImply, userRepo repo.UserRepoImply,
	pusher Pusher, mailer Mailer, live LiveNotifier, emailTypes []string, pageSize int,
) NotificationUsecaseImply {
	return &NotificationUsecases{
		repo:       notificationRepo,
		userRepo:   userRepo,
		pusher:     pusher,
		mailer:     mailer,
		live:       live,
		emailTypes: utilities.SliceToMap(emailTypes),
		deliveries: make(chan []*entities.Notification, deliveryQueueSize),
		pageSize:   pageSize,
	}
}

// FanOut builds one notification per target, skipping the actor and muted
// targets.
func FanOut(event entities.NotificationEvent, targets []entities.FanOutTarget) []*entities.Notification {
	seen := make(map[string]bool, len(targets))
	notifications := make([]*entities.Notification, 0, len(targets))

	for _, target := range targets {
		if target.UserID == event.Actor || target.IsMuted || seen[target.UserID] {
			continue
		}
		seen[target.UserID] = true

		notifications = append(notifications, &entities.Notification{
			Recipient:           target.UserID,
			Sender:              event.Actor,
			Type:                event.Type,
			Title:               event.Title,
			Message:             event.Message,
			RelatedConversation: event.ConversationID,
			RelatedGroup:        event.GroupID,
		})
	}

	return notifications
}

// Dispatch persists the fan-out records and hands them to the delivery
// processor. Failures are logged and never returned.
func (usecase *NotificationUsecases) Dispatch(
	ctx context.Context, event entities.NotificationEvent, targets []entities.FanOutTarget,
) {
	log := utilities.NewLoggerWithFields("Notification.Dispatch", map[string]interface{}{
		"type":  event.Type,
		"actor": event.Actor,
	})

	notifications := FanOut(event, targets)
	if len(notifications) == 0 {
		return
	}

	now := utilities.TimeNow()
	for _, n := range notifications {
		n.CreatedAt = now
	}

	if err := usecase.repo.InsertNotifications(ctx, notifications); err != nil {
		log.WithError(err).Error("failed to store notifications")
		return
	}

	if usecase.pusher == nil && usecase.mailer == nil && usecase.live == nil {
		return
	}

	select {
	case usecase.deliveries <- notifications:
	default:
		log.Warn("delivery queue full, skipping push and email")
	}
}

// NotificationProcessor delivers dispatched notifications to open sockets,
// devices and inboxes until ctx is done.
func (usecase *NotificationUsecases) NotificationProcessor(ctx context.Context) {
	log := utilities.NewLogger("NotificationProcessor")

	for {
		select {
		case <-ctx.Done():
			log.Info("Terminating...")
			return
		case notifications := <-usecase.deliveries:
			usecase.deliver(ctx, notifications)
		}
	}
}

// deliverLive writes each notification as a frame to every open connection
// of its recipient.
func (usecase *NotificationUsecases) deliverLive(notifications []*entities.Notification) {
	if usecase.live == nil {
		return
	}
	log := utilities.NewLogger("Notification.deliverLive")

	for _, n := range notifications {
		if !usecase.live.IsOnline(n.Recipient) {
			continue
		}

		data, err := json.Marshal(entities.SocketEnvelope{Event: consts.EventNotification, Data: n})
		if err != nil {
			log.WithError(err).Errorf("failed to marshal notification data %+v", n)
			continue
		}
		if err := usecase.live.PushMessage(n.Recipient, data, true); err != nil {
			log.WithError(err).Error("failed to push websocket notification")
		}
	}
}

func (usecase *NotificationUsecases) deliver(ctx context.Context, notifications []*entities.Notification) {
	log := utilities.NewLogger("Notification.deliver")

	recipients := make([]string, 0, len(notifications))
	for _, n := range notifications {
		recipients = append(recipients, n.Recipient)
	}

	usecase.deliverLive(notifications)

	if usecase.pusher != nil {
		devices, err := usecase.userRepo.GetDevices(ctx, recipients)
		if err != nil {
			log.WithError(err).Error("failed to load devices")
		}

		for _, n := range notifications {
			if len(devices[n.Recipient]) == 0 {
				continue
			}
			if err := usecase.pusher.PushNotification(ctx, n, devices[n.Recipient]); err != nil {
				log.WithError(err).Errorf("failed to push notification to %s", n.Recipient)
			}
		}
	}

	if usecase.mailer == nil {
		return
	}

	var mailable []*entities.Notification
	for _, n := range notifications {
		if usecase.emailTypes[n.Type] {
			mailable = append(mailable, n)
		}
	}
	if len(mailable) == 0 {
		return
	}

	users, err := usecase.userRepo.GetUsers(ctx, recipients)
	if err != nil {
		log.WithError(err).Error("failed to load recipients")
		return
	}

	for _, n := range mailable {
		user, ok := users[n.Recipient]
		if !ok || user.Email == "" {
			continue
		}
		usecase.mailer.Enqueue(medium.MailJob{To: user.Email, Notification: n})
	}
}

func (usecase *NotificationUsecases) GetNotifications(
	ctx context.Context, user string, pageSize int, pageState []byte,
) ([]*entities.Notification, []byte, error) {
	if pageSize <= 0 || pageSize > usecase.pageSize {
		pageSize = usecase.pageSize
	}

	notifications, next, err := usecase.repo.ListNotifications(ctx, user, pageSize, pageState)
	if err != nil {
		return nil, nil, entities.NewUnexpectedError("failed to list notifications", err)
	}

	return notifications, next, nil
}

func (usecase *NotificationUsecases) UnreadCount(ctx context.Context, user string) (int, error) {
	count, err := usecase.repo.CountUnread(ctx, user)
	if err != nil {
		return 0, entities.NewUnexpectedError("failed to count notifications", err)
	}
	return count, nil
}

func (usecase *NotificationUsecases) MarkRead(ctx context.Context, user, id string) error {
	if !repo.IsTimeID(id) {
		return entities.NewValidationError("invalid notification id")
	}

	if err := usecase.repo.MarkRead(ctx, user, id, utilities.TimeNow()); err != nil {
		return storeError(err, "notification")
	}
	return nil
}

func (usecase *NotificationUsecases) MarkAllRead(ctx context.Context, user string) (int, error) {
	count, err := usecase.repo.MarkAllRead(ctx, user, utilities.TimeNow())
	if err != nil {
		return 0, entities.NewUnexpectedError("failed to mark notifications read", err)
	}
	return count, nil
}

func (usecase *NotificationUsecases) DeleteNotification(ctx context.Context, user, id string) error {
	if !repo.IsTimeID(id) {
		return entities.NewValidationError("invalid notification id")
	}

	err := usecase.repo.DeleteNotification(ctx, user, id)
	if errors.Is(err, repo.ErrNotFound) {
		return entities.NewNotFoundError("notification not found")
	}
	if err != nil {
		return entities.NewUnexpectedError("failed to delete notification", err)
	}
	return nil
}
