package redis

import goredis "github.com/redis/go-redis/v9"

// Rotation outcome codes returned by rotateScript.
const (
	rotNotFound  = 0
	rotRevoked   = 1
	rotExpired   = 2
	rotOK        = 3
	rotDuplicate = 4
)

// KEYS: hash key, id key, subject set.
// ARGV: id, sub, hash, created, expires, ua, ip, origin, expire-at.
var createScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[2],
  'id', ARGV[1], 'sub', ARGV[2], 'hash', ARGV[3],
  'created', ARGV[4], 'expires', ARGV[5], 'revoked', '', 'replaced_by', '',
  'ua', ARGV[6], 'ip', ARGV[7], 'origin', ARGV[8])
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
redis.call('PEXPIREAT', KEYS[2], ARGV[9])
redis.call('PEXPIREAT', KEYS[1], ARGV[9])
return 1
`)

// KEYS: prev hash key, prev id key, next hash key, next id key, subject set.
// ARGV: prev id, now, next id, sub, next hash, created, expires, ua, ip, origin,
// next expire-at, expired retention ms, revoked retention ms.
var rotateScript = goredis.NewScript(`
local id = redis.call('GET', KEYS[1])
if (not id) or id ~= ARGV[1] then
  return 0
end
local rec = redis.call('HMGET', KEYS[2], 'revoked', 'expires')
if not rec[2] then
  return 0
end
if rec[1] and rec[1] ~= '' then
  return 1
end
local now = tonumber(ARGV[2])
if tonumber(rec[2]) <= now then
  return 2
end
if redis.call('EXISTS', KEYS[3]) == 1 then
  return 4
end
redis.call('HSET', KEYS[4],
  'id', ARGV[3], 'sub', ARGV[4], 'hash', ARGV[5],
  'created', ARGV[6], 'expires', ARGV[7], 'revoked', '', 'replaced_by', '',
  'ua', ARGV[8], 'ip', ARGV[9], 'origin', ARGV[10])
redis.call('SET', KEYS[3], ARGV[3])
redis.call('SADD', KEYS[5], ARGV[3])
redis.call('PEXPIREAT', KEYS[4], ARGV[11])
redis.call('PEXPIREAT', KEYS[3], ARGV[11])

redis.call('HSET', KEYS[2], 'revoked', ARGV[2], 'replaced_by', ARGV[3])
local keep = math.min(tonumber(rec[2]) + tonumber(ARGV[12]), now + tonumber(ARGV[13]))
redis.call('PEXPIREAT', KEYS[2], keep)
redis.call('PEXPIREAT', KEYS[1], keep)
return 3
`)

// KEYS: hash key, id key.
// ARGV: id, now, expired retention ms, revoked retention ms.
var revokeScript = goredis.NewScript(`
local id = redis.call('GET', KEYS[1])
if (not id) or id ~= ARGV[1] then
  return 0
end
local rec = redis.call('HMGET', KEYS[2], 'revoked', 'expires')
if (not rec[2]) or (rec[1] and rec[1] ~= '') then
  return 0
end
local now = tonumber(ARGV[2])
redis.call('HSET', KEYS[2], 'revoked', ARGV[2])
local keep = math.min(tonumber(rec[2]) + tonumber(ARGV[3]), now + tonumber(ARGV[4]))
redis.call('PEXPIREAT', KEYS[2], keep)
redis.call('PEXPIREAT', KEYS[1], keep)
return 1
`)

// KEYS: subject set.
// ARGV: key prefix, now, expired retention ms, revoked retention ms.
// Record keys are derived from set members, so this script needs all keys on one node.
var revokeAllScript = goredis.NewScript(`
local now = tonumber(ARGV[2])
local n = 0
for _, id in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  local idKey = ARGV[1] .. 'id:' .. id
  local rec = redis.call('HMGET', idKey, 'revoked', 'expires', 'hash')
  if not rec[2] then
    redis.call('SREM', KEYS[1], id)
  elseif (rec[1] == '' or not rec[1]) and tonumber(rec[2]) > now then
    redis.call('HSET', idKey, 'revoked', ARGV[2])
    local keep = math.min(tonumber(rec[2]) + tonumber(ARGV[3]), now + tonumber(ARGV[4]))
    redis.call('PEXPIREAT', idKey, keep)
    redis.call('PEXPIREAT', ARGV[1] .. 'hash:' .. rec[3], keep)
    n = n + 1
  end
end
return n
`)
