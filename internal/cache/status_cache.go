package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/upkeep/internal/config"
	maintenancedomain "github.com/smallbiznis/upkeep/internal/maintenance/domain"
)

const (
	statusKeyPrefix     = "upkeep:status:"
	generationKeyPrefix = "upkeep:status-gen:"

	// generationTTL must outlast any single lookup between Get and Set.
	generationTTL = 24 * time.Hour
)

var setIfGenerationScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[2]) or "0")
if current ~= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// StatusCache keeps public status payloads in redis, keyed by normalized client code.
type StatusCache struct {
	client *redis.Client
	cfg    *config.MaintenanceConfigHolder
}

func NewStatusCache(client *redis.Client, cfg *config.MaintenanceConfigHolder) *StatusCache {
	return &StatusCache{client: client, cfg: cfg}
}

// ProvideStatusCache yields a nil StatusCache when no redis client is configured.
func ProvideStatusCache(client *redis.Client, cfg *config.MaintenanceConfigHolder) maintenancedomain.StatusCache {
	if client == nil {
		return nil
	}
	return NewStatusCache(client, cfg)
}

// Get returns the cached status, or nil on a miss, together with the
// generation the caller must hand back to Set.
func (c *StatusCache) Get(ctx context.Context, clientCode string) (*maintenancedomain.PublicStatus, int64, error) {
	values, err := c.client.MGet(ctx, statusKey(clientCode), generationKey(clientCode)).Result()
	if err != nil {
		return nil, 0, err
	}

	var generation int64
	if raw, ok := values[1].(string); ok {
		generation, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, err
		}
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}
	var status maintenancedomain.PublicStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return nil, generation, err
	}
	return &status, generation, nil
}

// Set stores status only while the code is still at generation; an
// Invalidate in between means status may predate the mutation.
func (c *StatusCache) Set(ctx context.Context, clientCode string, status maintenancedomain.PublicStatus, generation int64) error {
	ttl := c.ttl()
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}
	keys := []string{statusKey(clientCode), generationKey(clientCode)}
	return setIfGenerationScript.Run(ctx, c.client, keys, generation, payload, ttl.Milliseconds()).Err()
}

func (c *StatusCache) Invalidate(ctx context.Context, clientCodes ...string) error {
	if len(clientCodes) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, code := range clientCodes {
			pipe.Incr(ctx, generationKey(code))
			pipe.Expire(ctx, generationKey(code), generationTTL)
			pipe.Del(ctx, statusKey(code))
		}
		return nil
	})
	return err
}

func (c *StatusCache) ttl() time.Duration {
	return c.cfg.Get().PublicStatus.CacheTTL
}

func statusKey(clientCode string) string {
	return statusKeyPrefix + clientCode
}

func generationKey(clientCode string) string {
	return generationKeyPrefix + clientCode
}
