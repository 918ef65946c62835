package medium

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	uuidLib "github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"wisdomwalk/config"
	"wisdomwalk/utilities"
)

// roomFrame is what travels on the pub/sub channel between instances. A
// frame with Evict set carries no data and removes that user from the room.
type roomFrame struct {
	Instance string `json:"instance"`
	Room     string `json:"room"`
	Exclude  string `json:"exclude,omitempty"`
	Evict    string `json:"evict,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// RoomSubscriber applies frames received from other instances.
type RoomSubscriber interface {
	DeliverToRoom(room string, data []byte, exclude string) int
	LeaveUser(room, user string) int
}

// RedisBroker relays room broadcasts between gateway instances over a single
// redis pub/sub channel.
type RedisBroker struct {
	client     *redis.Client
	channel    string
	instanceID string
}

func NewRedisBroker(ctx context.Context, conf config.Redis) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: conf.Addr, Password: conf.Password, DB: conf.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisBroker{
		client:     client,
		channel:    conf.Channel,
		instanceID: uuidLib.NewString(),
	}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, room string, data []byte, exclude string) error {
	return b.publish(ctx, roomFrame{Instance: b.instanceID, Room: room, Exclude: exclude, Data: data})
}

func (b *RedisBroker) PublishEviction(ctx context.Context, room, user string) error {
	return b.publish(ctx, roomFrame{Instance: b.instanceID, Room: room, Evict: user})
}

func (b *RedisBroker) publish(ctx context.Context, frame roomFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe delivers frames published by other instances until ctx is done.
func (b *RedisBroker) Subscribe(ctx context.Context, rooms RoomSubscriber) {
	log := utilities.NewLoggerWithFields("RedisBroker.Subscribe", map[string]interface{}{
		"channel": b.channel,
	})

	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping room subscription")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var frame roomFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				log.WithError(err).Error("failed to decode room frame")
				continue
			}
			if frame.Instance == b.instanceID {
				continue
			}

			if frame.Evict != "" {
				dropped := rooms.LeaveUser(frame.Room, frame.Evict)
				log.Debugf("evicted %s from room %s, %d connections", frame.Evict, frame.Room, dropped)
				continue
			}

			sent := rooms.DeliverToRoom(frame.Room, frame.Data, frame.Exclude)
			log.Debugf("relayed frame of room %s to %d connections", frame.Room, sent)
		}
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
