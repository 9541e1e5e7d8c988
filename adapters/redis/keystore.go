package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/artpar/quotagate/domain/account"
	"github.com/artpar/quotagate/ports"
	goredis "github.com/redis/go-redis/v9"
)

// createScript inserts an account hash only when the key is free.
// KEYS[1] = account hash, KEYS[2] = creation index
// ARGV = api_key, secret_hash, active, plan, quota, used, created_at (unix nanos)
var createScript = goredis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 1 then
		return 0
	end
	redis.call('HSET', KEYS[1],
		'secret_hash', ARGV[2], 'active', ARGV[3], 'plan', ARGV[4],
		'quota', ARGV[5], 'used', ARGV[6], 'created_at', ARGV[7])
	redis.call('ZADD', KEYS[2], ARGV[7], ARGV[1])
	return 1
`)

// chargeScript is the compare-and-charge step.
// KEYS[1] = account hash
// ARGV[1] = expected used
// Returns {code, used}: 0 ok, -1 not found, -2 quota exceeded, -3 conflict,
// -4 inactive.
var chargeScript = goredis.NewScript(`
	local v = redis.call('HMGET', KEYS[1], 'used', 'quota', 'active')
	if not v[1] then
		return {-1, 0}
	end
	local used = tonumber(v[1])
	local quota = tonumber(v[2])
	if v[3] ~= '1' then
		return {-4, used}
	end
	if used >= quota then
		return {-2, used}
	end
	if used ~= tonumber(ARGV[1]) then
		return {-3, used}
	end
	return {0, redis.call('HINCRBY', KEYS[1], 'used', 1)}
`)

// setActiveScript sets the active field of an existing hash.
// KEYS[1] = account hash, ARGV[1] = "1" or "0"
var setActiveScript = goredis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return 0
	end
	redis.call('HSET', KEYS[1], 'active', ARGV[1])
	return 1
`)

// KeyStore implements ports.KeyStore using Redis hashes.
type KeyStore struct {
	client *goredis.Client
	keys   keyspace
}

// NewKeyStore creates a Redis key store. Keys are namespaced by prefix.
func NewKeyStore(client *goredis.Client, prefix string) *KeyStore {
	return &KeyStore{client: client, keys: keyspace(prefix)}
}

// Get retrieves the record for an API key.
func (s *KeyStore) Get(ctx context.Context, apiKey string) (account.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.keys.account(apiKey)).Result()
	if err != nil {
		return account.Record{}, err
	}
	if len(fields) == 0 {
		return account.Record{}, ports.ErrNotFound
	}
	return decodeAccount(apiKey, fields)
}

// Create inserts a new record without overwriting.
func (s *KeyStore) Create(ctx context.Context, rec account.Record) error {
	ok, err := createScript.Run(ctx, s.client,
		[]string{s.keys.account(rec.APIKey), s.keys.index()},
		encodeArgs(rec)...,
	).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ports.ErrAlreadyExists
	}
	return nil
}

// Put upserts a record.
func (s *KeyStore) Put(ctx context.Context, rec account.Record) error {
	created := strconv.FormatInt(rec.CreatedAt.UnixNano(), 10)
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.account(rec.APIKey),
			"secret_hash", string(rec.SecretHash),
			"active", boolString(rec.Active),
			"plan", rec.Plan,
			"quota", rec.Quota,
			"used", rec.Used,
			"created_at", created,
		)
		pipe.ZAdd(ctx, s.keys.index(), goredis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.APIKey})
		return nil
	})
	return err
}

// SetActive flips the active field without touching used.
func (s *KeyStore) SetActive(ctx context.Context, apiKey string, active bool) error {
	n, err := setActiveScript.Run(ctx, s.client, []string{s.keys.account(apiKey)}, boolString(active)).Int()
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// CompareAndCharge runs the charge script.
func (s *KeyStore) CompareAndCharge(ctx context.Context, apiKey string, expectedUsed int64) (int64, error) {
	res, err := chargeScript.Run(ctx, s.client, []string{s.keys.account(apiKey)}, expectedUsed).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("charge script: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("charge script: unexpected reply %v", res)
	}

	switch res[0] {
	case 0:
		return res[1], nil
	case -1:
		return 0, ports.ErrNotFound
	case -2:
		return res[1], ports.ErrQuotaExceeded
	case -3:
		return res[1], ports.ErrConflict
	case -4:
		return res[1], ports.ErrInactive
	}
	return 0, fmt.Errorf("charge script: unknown code %d", res[0])
}

// List returns records ordered by creation time.
func (s *KeyStore) List(ctx context.Context, limit, offset int) ([]account.Record, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	members, err := s.client.ZRange(ctx, s.keys.index(), int64(offset), stop).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(members))
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, m := range members {
			cmds[i] = pipe.HGetAll(ctx, s.keys.account(m))
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	out := make([]account.Record, 0, len(members))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeAccount(members[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Ping checks the server is reachable.
func (s *KeyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func encodeArgs(rec account.Record) []any {
	return []any{
		rec.APIKey,
		string(rec.SecretHash),
		boolString(rec.Active),
		rec.Plan,
		rec.Quota,
		rec.Used,
		strconv.FormatInt(rec.CreatedAt.UnixNano(), 10),
	}
}

func decodeAccount(apiKey string, f map[string]string) (account.Record, error) {
	quota, err := strconv.ParseInt(f["quota"], 10, 64)
	if err != nil {
		return account.Record{}, fmt.Errorf("decode quota: %w", err)
	}
	used, err := strconv.ParseInt(f["used"], 10, 64)
	if err != nil {
		return account.Record{}, fmt.Errorf("decode used: %w", err)
	}
	nanos, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return account.Record{}, fmt.Errorf("decode created_at: %w", err)
	}
	return account.Record{
		APIKey:     apiKey,
		SecretHash: []byte(f["secret_hash"]),
		Active:     f["active"] == "1",
		Plan:       f["plan"],
		Quota:      quota,
		Used:       used,
		CreatedAt:  time.Unix(0, nanos).UTC(),
	}, nil
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Ensure interface compliance.
var _ ports.KeyStore = (*KeyStore)(nil)
