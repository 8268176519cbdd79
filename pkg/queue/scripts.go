package queue

import "github.com/redis/go-redis/v9"

// All state transitions run as Lua scripts so a crash between steps
// can never strand a message outside exactly one of ready, delayed,
// inflight, or the dead letter list.

// enqueueScript registers a message and places it on ready or delayed.
// When a job id is supplied, a seen-key guards against duplicate
// enqueues inside the visibility window: the existing message id is
// returned with a 0 flag instead of creating a second message.
//
// KEYS: ready, delayed, seen, msg
// ARGV: id, body, jobID, enqueuedMs, readyAtMs, seenTTLms, front
var enqueueScript = redis.NewScript(`
if ARGV[3] ~= "" then
	local existing = redis.call("GET", KEYS[3])
	if existing then
		return {existing, 0}
	end
	redis.call("SET", KEYS[3], ARGV[1], "PX", ARGV[6])
end
redis.call("HSET", KEYS[4], "body", ARGV[2], "job_id", ARGV[3], "attempts", 0, "enqueued_ms", ARGV[4])
if tonumber(ARGV[5]) > 0 then
	redis.call("ZADD", KEYS[2], ARGV[5], ARGV[1])
elseif ARGV[7] == "1" then
	redis.call("RPUSH", KEYS[1], ARGV[1])
else
	redis.call("LPUSH", KEYS[1], ARGV[1])
end
return {ARGV[1], 1}
`)

// dequeueScript pops the oldest ready message, bumps its attempt
// counter, and records an inflight deadline in one step.
//
// KEYS: ready, inflight
// ARGV: msgKeyPrefix, deadlineMs
var dequeueScript = redis.NewScript(`
local id = redis.call("RPOP", KEYS[1])
if not id then
	return false
end
local mk = ARGV[1] .. id
local attempts = redis.call("HINCRBY", mk, "attempts", 1)
redis.call("ZADD", KEYS[2], ARGV[2], id)
local body = redis.call("HGET", mk, "body")
local jobid = redis.call("HGET", mk, "job_id")
local enq = redis.call("HGET", mk, "enqueued_ms")
return {id, body or "", jobid or "", attempts, enq or "0"}
`)

// ackScript removes a delivered message for good.
//
// KEYS: inflight, msg
// ARGV: id
var ackScript = redis.NewScript(`
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("DEL", KEYS[2])
return 1
`)

// nackScript returns a delivered message to ready (or delayed when a
// retry delay is requested). The message hash, including its attempt
// count, survives for the next delivery.
//
// KEYS: inflight, ready, delayed
// ARGV: id, readyAtMs
var nackScript = redis.NewScript(`
redis.call("ZREM", KEYS[1], ARGV[1])
if tonumber(ARGV[2]) > 0 then
	redis.call("ZADD", KEYS[3], ARGV[2], ARGV[1])
else
	redis.call("LPUSH", KEYS[2], ARGV[1])
end
return 1
`)

// deadLetterScript moves a delivered message to the dead letter list
// with a reason envelope and drops the message hash.
//
// KEYS: inflight, dlq, msg
// ARGV: id, entryJSON
var deadLetterScript = redis.NewScript(`
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("LPUSH", KEYS[2], ARGV[2])
redis.call("DEL", KEYS[3])
return 1
`)

// reapScript promotes due delayed messages and requeues expired
// inflight deliveries, bounded per call.
//
// KEYS: delayed, ready, inflight
// ARGV: nowMs, limit
var reapScript = redis.NewScript(`
local moved = 0
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, id in ipairs(due) do
	redis.call("ZREM", KEYS[1], id)
	redis.call("LPUSH", KEYS[2], id)
	moved = moved + 1
end
local expired = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, id in ipairs(expired) do
	redis.call("ZREM", KEYS[3], id)
	redis.call("LPUSH", KEYS[2], id)
	moved = moved + 1
end
return moved
`)
