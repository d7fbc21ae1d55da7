package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient обертка над Redis клиентом: Pub/Sub флага и короткие блокировки
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient создает новый Redis клиент
func NewRedisClient(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Publish публикует сообщение в канал (Pub/Sub)
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	var data string
	switch v := message.(type) {
	case string:
		data = v
	default:
		jsonData, err := json.Marshal(message)
		if err != nil {
			return err
		}
		data = string(jsonData)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe подписывается на канал и возвращает канал сообщений.
// Подписка подтверждается до возврата, иначе первое сообщение можно потерять
func (r *RedisClient) Subscribe(ctx context.Context, channel string) (<-chan *redis.Message, func() error, error) {
	pubsub := r.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}
	return pubsub.Channel(), pubsub.Close, nil
}

// TryLock берет блокировку через SET NX с TTL
func (r *RedisClient) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, owner, ttl).Result()
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Unlock снимает блокировку, только если она все еще наша
func (r *RedisClient) Unlock(ctx context.Context, key, owner string) error {
	return unlockScript.Run(ctx, r.client, []string{key}, owner).Err()
}

// GetClient возвращает исходный клиент
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}
