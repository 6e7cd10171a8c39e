package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/uber-go/tally/v4"

	"github.com/securemsg/accountdir/internal/logging"
)

// Cache is the write-through Redis index in front of the legacy store. It
// holds two keyspaces in the same cluster: a number-to-uuid pointer and the
// serialised account entity.
//
// Cache faults never propagate to readers; a failed or malformed lookup
// degrades to a miss. The one exception is account serialisation on Set,
// which is a programming error and surfaces as one.
type Cache struct {
	client redis.UniversalClient
	logger logging.Logger

	setTimer       tally.Timer
	numberGetTimer tally.Timer
	uuidGetTimer   tally.Timer
	deleteTimer    tally.Timer
}

func NewCache(client redis.UniversalClient, scope tally.Scope, logger logging.Logger) *Cache {
	return &Cache{
		client:         client,
		logger:         logger,
		setTimer:       scope.Timer("redisSet"),
		numberGetTimer: scope.Timer("redisNumberGet"),
		uuidGetTimer:   scope.Timer("redisUuidGet"),
		deleteTimer:    scope.Timer("redisDelete"),
	}
}

func accountMapKey(number string) string {
	return "AccountMap::" + number
}

func accountEntityKey(id uuid.UUID) string {
	return "Account3::" + id.String()
}

// Set writes the number pointer and the entity in one pipelined round trip.
// Cluster failures are logged and swallowed; the authoritative store wins on
// the next read.
func (c *Cache) Set(ctx context.Context, account *Account) error {
	sw := c.setTimer.Start()
	defer sw.Stop()

	data, err := marshalForCache(account)
	if err != nil {
		return fmt.Errorf("account serialization error: %w", err)
	}

	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, accountMapKey(account.Number), account.UUID.String(), 0)
		pipe.Set(ctx, accountEntityKey(account.UUID), data, 0)
		return nil
	})
	if err != nil {
		c.logger.Warn(ctx, "redis failure", "op", "set", "error", err)
	}

	return nil
}

// Get resolves the number pointer and then the entity. Never returns an
// error; nil means miss.
func (c *Cache) Get(ctx context.Context, number string) *Account {
	sw := c.numberGetTimer.Start()
	defer sw.Stop()

	pointer, err := c.client.Get(ctx, accountMapKey(number)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "redis failure", "op", "numberGet", "error", err)
		}
		return nil
	}

	id, err := uuid.Parse(pointer)
	if err != nil {
		c.logger.Warn(ctx, "deserialization error", "op", "numberGet", "error", err)
		return nil
	}

	return c.GetByUUID(ctx, id)
}

// GetByUUID fetches and deserialises the entity. Never returns an error;
// nil means miss.
func (c *Cache) GetByUUID(ctx context.Context, id uuid.UUID) *Account {
	sw := c.uuidGetTimer.Start()
	defer sw.Stop()

	data, err := c.client.Get(ctx, accountEntityKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn(ctx, "redis failure", "op", "uuidGet", "error", err)
		}
		return nil
	}

	account, err := unmarshalFromCache(data, id)
	if err != nil {
		c.logger.Warn(ctx, "deserialization error", "op", "uuidGet", "error", err)
		return nil
	}

	return account
}

// Delete evicts both keys in one round trip. Unlike Set, a cluster failure
// here is returned: deletion must not proceed to the stores while the cache
// may still hold the record.
func (c *Cache) Delete(ctx context.Context, account *Account) error {
	sw := c.deleteTimer.Start()
	defer sw.Stop()

	if err := c.client.Del(ctx, accountMapKey(account.Number), accountEntityKey(account.UUID)).Err(); err != nil {
		return fmt.Errorf("redis failure: %w", err)
	}
	return nil
}
