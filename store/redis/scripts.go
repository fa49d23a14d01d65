package redis

import goredis "github.com/redis/go-redis/v9"

// createJobScript inserts a job unless its slot is published or has an
// active job.
//
// KEYS: job, active marker, published marker, id index
// ARGV: id, data, updated_us, active flag, published flag
var createJobScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then return 'published' end
if redis.call('EXISTS', KEYS[2]) == 1 then return 'duplicate' end
if redis.call('EXISTS', KEYS[1]) == 1 then return 'exists' end
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'updated_us', ARGV[3])
if ARGV[4] == '1' then redis.call('SET', KEYS[2], ARGV[1]) end
if ARGV[5] == '1' then redis.call('SET', KEYS[3], ARGV[1]) end
redis.call('ZADD', KEYS[4], 0, ARGV[1])
return 'ok'
`)

// updateJobScript replaces a job when its stored token equals the one the
// caller read, keeping the slot markers in step with the new stage.
//
// KEYS: job, active marker, published marker
// ARGV: id, seen_us, data, updated_us, active flag, published flag
var updateJobScript = goredis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'updated_us')
if not cur then return 'missing' end
if cur ~= ARGV[2] then return 'stale' end
local owner = redis.call('GET', KEYS[2])
if ARGV[5] == '1' then
  if owner and owner ~= ARGV[1] then return 'duplicate' end
  redis.call('SET', KEYS[2], ARGV[1])
elseif owner == ARGV[1] then
  redis.call('DEL', KEYS[2])
end
if ARGV[6] == '1' then redis.call('SET', KEYS[3], ARGV[1]) end
redis.call('HSET', KEYS[1], 'data', ARGV[3], 'updated_us', ARGV[4])
return 'ok'
`)

// acquireLeaseScript stores a lease unless the current one expires after
// the acquisition time.
//
// KEYS: lease
// ARGV: token, holder, acquired_us, expires_us, gc_ttl_ms
var acquireLeaseScript = goredis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_us')
if exp and tonumber(exp) > tonumber(ARGV[3]) then return 0 end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], 'token', ARGV[1], 'holder', ARGV[2], 'acquired_us', ARGV[3], 'expires_us', ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// renewLeaseScript extends a live lease held under token.
//
// KEYS: lease
// ARGV: token, now_us, expires_us, gc_ttl_ms
var renewLeaseScript = goredis.NewScript(`
local tok = redis.call('HGET', KEYS[1], 'token')
if not tok or tok ~= ARGV[1] then return 0 end
local exp = redis.call('HGET', KEYS[1], 'expires_us')
if tonumber(exp) <= tonumber(ARGV[2]) then return 0 end
redis.call('HSET', KEYS[1], 'acquired_us', ARGV[2], 'expires_us', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// releaseLeaseScript deletes a lease held under token.
//
// KEYS: lease
// ARGV: token
var releaseLeaseScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'token') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)
