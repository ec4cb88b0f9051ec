// Package redis connects to the Redis server that backs cross-process file
// locks.
//
// Connect retries until the server answers PING or the connect timeout
// elapses; Healthcheck adapts a client into a readiness probe:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	locker := lock.NewRedisLocker(client)
//
// Config is populated from REDIS_* environment variables through pkg/config.
package redis
