// Package redis implements store.Store on Redis. Jobs are Hashes holding the
// JSON document and its concurrency token; slot uniqueness is kept by
// marker keys that Lua scripts check and set atomically with the job write.
// Leases are Hashes compared against caller-supplied times, with a Redis
// TTL only as garbage collection.
//
// The caller owns the client lifecycle:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
