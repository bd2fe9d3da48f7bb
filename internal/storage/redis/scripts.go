package redis

const (
	// updateSettingsScript seeds the settings from defaults on first write and
	// then applies exactly one change.
	updateSettingsScript = `
local settings_key = KEYS[1]    -- usagereporter:settings
local excluded_key = KEYS[2]    -- usagereporter:settings:excluded

local op = ARGV[5]
local default_excluded = tonumber(ARGV[6])
local first_arg = 7 + default_excluded

if redis.call('EXISTS', settings_key) == 0 then
  redis.call('HSET', settings_key,
    'destination_url', ARGV[1],
    'send_enabled', ARGV[2],
    'send_hour', ARGV[3],
    'send_minute', ARGV[4]
  )
  redis.call('DEL', excluded_key)
  for i = 7, first_arg - 1 do
    redis.call('SADD', excluded_key, ARGV[i])
  end
end

if op == 'hset' then
  for i = first_arg, #ARGV, 2 do
    redis.call('HSET', settings_key, ARGV[i], ARGV[i + 1])
  end
elseif op == 'sadd' then
  for i = first_arg, #ARGV do
    redis.call('SADD', excluded_key, ARGV[i])
  end
elseif op == 'srem' then
  for i = first_arg, #ARGV do
    redis.call('SREM', excluded_key, ARGV[i])
  end
elseif op == 'replace' then
  redis.call('DEL', excluded_key)
  for i = first_arg, #ARGV do
    redis.call('SADD', excluded_key, ARGV[i])
  end
else
  return redis.error_reply('unknown settings op: ' .. op)
end

return 'OK'
`

	// addIntervalScript stores an interval and indexes it by start time
	addIntervalScript = `
local interval_key = KEYS[1]    -- usagereporter:usage:interval:{id}
local index_key = KEYS[2]       -- usagereporter:usage:intervals

local id = ARGV[1]
local application_id = ARGV[2]
local started = ARGV[3]
local ended = ARGV[4]
local score = ARGV[5]

redis.call('HSET', interval_key,
  'id', id,
  'application_id', application_id,
  'start', started,
  'end', ended
)
redis.call('ZADD', index_key, score, id)

return 'OK'
`

	// upsertJobScript replaces a job registration and indexes its name
	upsertJobScript = `
local job_key = KEYS[1]         -- usagereporter:job:{name}
local jobs_set = KEYS[2]        -- usagereporter:jobs

redis.call('DEL', job_key)
redis.call('HSET', job_key,
  'name', ARGV[1],
  'interval', ARGV[2],
  'next_fire', ARGV[3],
  'requires_network', ARGV[4],
  'updated_at', ARGV[5]
)
redis.call('SADD', jobs_set, ARGV[1])

return 'OK'
`

	// deleteJobScript removes a job and returns 0 when it did not exist
	deleteJobScript = `
local job_key = KEYS[1]         -- usagereporter:job:{name}
local jobs_set = KEYS[2]        -- usagereporter:jobs

local removed = redis.call('SREM', jobs_set, ARGV[1])
local deleted = redis.call('DEL', job_key)

if removed == 0 and deleted == 0 then
  return 0
end
return 1
`
)
