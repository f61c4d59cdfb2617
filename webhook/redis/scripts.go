package redis

import "github.com/redis/go-redis/v9"

// claimScript moves an item from pending to processing only if it is still pending and due
// KEYS: item, ready, status:pending, status:processing, claimed, retrying
// ARGV: id, now
var claimScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'pending' then
	return 0
end
if tonumber(redis.call('HGET', KEYS[1], 'next_attempt_at')) > tonumber(ARGV[2]) then
	return 0
end
local created = redis.call('HGET', KEYS[1], 'created_at')
redis.call('HSET', KEYS[1], 'status', 'processing', 'claimed_at', ARGV[2], 'updated_at', ARGV[2])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], created, ARGV[1])
redis.call('ZADD', KEYS[5], ARGV[2], ARGV[1])
redis.call('SREM', KEYS[6], ARGV[1])
return 1
`)

// completeScript moves a processing item to completed
// KEYS: item, status:processing, status:completed, claimed, completed
// ARGV: id, now, processing_ms
var completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'processing' then
	return 0
end
local created = redis.call('HGET', KEYS[1], 'created_at')
redis.call('HSET', KEYS[1], 'status', 'completed', 'completed_at', ARGV[2], 'updated_at', ARGV[2], 'processing_time_ms', ARGV[3])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], created, ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('ZADD', KEYS[5], ARGV[2], ARGV[1])
return 1
`)

// retryScript moves a processing item back to pending with a new eligibility time
// KEYS: item, errors, status:processing, status:pending, claimed, ready, retrying
// ARGV: id, attempts, next_attempt_at, last_error, entry_json, now
var retryScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'processing' then
	return 0
end
local created = redis.call('HGET', KEYS[1], 'created_at')
redis.call('HSET', KEYS[1], 'status', 'pending', 'attempts', ARGV[2], 'next_attempt_at', ARGV[3], 'last_error', ARGV[4], 'updated_at', ARGV[6])
redis.call('HDEL', KEYS[1], 'claimed_at')
redis.call('RPUSH', KEYS[2], ARGV[5])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], created, ARGV[1])
redis.call('ZREM', KEYS[5], ARGV[1])
redis.call('ZADD', KEYS[6], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[7], ARGV[1])
return 1
`)

// failScript moves a processing item to failed
// KEYS: item, errors, status:processing, status:failed, claimed
// ARGV: id, attempts, last_error, entry_json, now
var failScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'processing' then
	return 0
end
local created = redis.call('HGET', KEYS[1], 'created_at')
redis.call('HSET', KEYS[1], 'status', 'failed', 'attempts', ARGV[2], 'last_error', ARGV[3], 'updated_at', ARGV[5])
redis.call('RPUSH', KEYS[2], ARGV[4])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZADD', KEYS[4], created, ARGV[1])
redis.call('ZREM', KEYS[5], ARGV[1])
return 1
`)

// recoverScript counts a stuck claim as a failed attempt
// KEYS: item, errors, status:processing, status:pending, status:failed, claimed, ready, retrying
// ARGV: id, now, now_rfc3339, error
// Returns {outcome, attempts}: outcome 0 skipped, 1 re-armed, 2 failed
var recoverScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'processing' then
	redis.call('ZREM', KEYS[6], ARGV[1])
	return {0, 0}
end
local created = redis.call('HGET', KEYS[1], 'created_at')
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts'))
local entry = '{"attempt":' .. attempts .. ',"error":' .. cjson.encode(ARGV[4]) .. ',"at":"' .. ARGV[3] .. '"}'
redis.call('RPUSH', KEYS[2], entry)
redis.call('HSET', KEYS[1], 'last_error', ARGV[4], 'updated_at', ARGV[2])
redis.call('HDEL', KEYS[1], 'claimed_at')
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[6], ARGV[1])
if attempts >= max then
	redis.call('HSET', KEYS[1], 'status', 'failed')
	redis.call('ZADD', KEYS[5], created, ARGV[1])
	return {2, attempts}
end
redis.call('HSET', KEYS[1], 'status', 'pending', 'next_attempt_at', ARGV[2])
redis.call('ZADD', KEYS[4], created, ARGV[1])
redis.call('ZADD', KEYS[7], ARGV[2], ARGV[1])
redis.call('SADD', KEYS[8], ARGV[1])
return {1, attempts}
`)

// saveEntryScript upserts an idempotency record, replacing it only when expired
// KEYS: record
// ARGV: created_at, expires_at, field, value, ...
var saveEntryScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if (not exp) or tonumber(exp) <= tonumber(ARGV[1]) then
	redis.call('DEL', KEYS[1])
	redis.call('HSET', KEYS[1], 'created_at', ARGV[1], 'expires_at', ARGV[2])
	redis.call('PEXPIREAT', KEYS[1], ARGV[2])
end
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return 1
`)

// markProcessedScript flags a live idempotency record
// KEYS: record
// ARGV: at, status_code, note
var markProcessedScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if (not exp) or tonumber(exp) <= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'processed', '1', 'processed_at', ARGV[1], 'status_code', ARGV[2], 'note', ARGV[3])
return 1
`)
