package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// OrderLock é o token de exclusão mútua de vida curta por pedido. Ele
// absorve double-submit de retries de rede e eventos duplicados de UI: a
// segunda submissão dentro do TTL é recusada sem erro. O TTL troca
// serializabilidade estrita por disponibilidade — um lock travado expira
// sozinho em vez de prender o pedido para sempre.
type OrderLock interface {
	Acquire(ctx context.Context, orderID string) (token string, ok bool, err error)
	Release(ctx context.Context, orderID, token string) error
}

// RedisOrderLock implementa OrderLock com SET NX + TTL
type RedisOrderLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisOrderLock cria o lock por pedido com o TTL configurado
func NewRedisOrderLock(client *redis.Client, ttl time.Duration) *RedisOrderLock {
	return &RedisOrderLock{client: client, ttl: ttl}
}

func lockKey(orderID string) string {
	return "draftorders:lock:" + orderID
}

// Acquire tenta tomar o lock do pedido. ok=false significa que outra
// submissão está em andamento dentro do TTL.
func (l *RedisOrderLock) Acquire(ctx context.Context, orderID string) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, lockKey(orderID), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// releaseScript só apaga a chave se o token ainda for o nosso, para não
// liberar o lock de uma submissão posterior depois de um TTL expirado
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// Release devolve o lock do pedido
func (l *RedisOrderLock) Release(ctx context.Context, orderID, token string) error {
	return releaseScript.Run(ctx, l.client, []string{lockKey(orderID)}, token).Err()
}
