// Package redisstore keeps the attendance ledger in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/ledger"
	"github.com/kozaktomas/rollcall/internal/logging"
)

const keyPrefix = "attendance"

// markScript adds the member to the session set and, only when it was not
// there yet, stores the record and indexes the session by date.
var markScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('SADD', KEYS[3], ARGV[3])
return 1
`)

// Ledger stores marks per session in a set of member keys plus a hash of records.
type Ledger struct {
	client *redis.Client
	log    logrus.FieldLogger
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}

// New creates a Redis-backed ledger.
func New(client *redis.Client, log logrus.FieldLogger) *Ledger {
	return &Ledger{client: client, log: logging.OrDiscard(log)}
}

func membersKey(key ledger.SessionKey) string {
	return keyPrefix + ":{" + key.Encode() + "}:members"
}

func recordsKey(key ledger.SessionKey) string {
	return keyPrefix + ":{" + key.Encode() + "}:records"
}

func sessionsKey(date string) string {
	return keyPrefix + ":sessions:" + date
}

// MarkPresent atomically adds the member to the session.
func (l *Ledger) MarkPresent(ctx context.Context, key ledger.SessionKey, m ledger.Mark) (ledger.MarkResult, error) {
	data, err := json.Marshal(m.Record())
	if err != nil {
		return 0, fmt.Errorf("marshal attendance record: %w", err)
	}

	added, err := markScript.Run(ctx, l.client,
		[]string{membersKey(key), recordsKey(key), sessionsKey(key.Date)},
		m.Key(), string(data), key.Encode(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("mark attendance: %w", err)
	}
	if added == 0 {
		return ledger.AlreadyMarked, nil
	}
	return ledger.Marked, nil
}

// IsMarked reports whether member (see ledger.MemberKey) has a mark in the session.
func (l *Ledger) IsMarked(ctx context.Context, key ledger.SessionKey, member string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, membersKey(key), member).Result()
	if err != nil {
		return false, fmt.Errorf("check attendance: %w", err)
	}
	return ok, nil
}

// Records returns the session's records ordered by timestamp.
func (l *Ledger) Records(ctx context.Context, key ledger.SessionKey) ([]ledger.Record, error) {
	values, err := l.client.HGetAll(ctx, recordsKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}

	records := make([]ledger.Record, 0, len(values))
	for member, raw := range values {
		var rec ledger.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			l.log.WithError(err).WithFields(logging.Fields{
				"session": key.Encode(),
				"member":  member,
			}).Warn("skipping unreadable attendance record")
			continue
		}
		records = append(records, rec)
	}

	slices.SortFunc(records, func(a, b ledger.Record) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.RollNo, b.RollNo)
	})
	return records, nil
}

// Sessions lists the sessions with marks on date.
func (l *Ledger) Sessions(ctx context.Context, date string) ([]ledger.SessionKey, error) {
	encoded, err := l.client.SMembers(ctx, sessionsKey(date)).Result()
	if err != nil {
		return nil, fmt.Errorf("list attendance sessions: %w", err)
	}
	slices.Sort(encoded)

	keys := make([]ledger.SessionKey, 0, len(encoded))
	for _, enc := range encoded {
		key, err := ledger.ParseSessionKey(enc)
		if err != nil {
			l.log.WithError(err).WithField("session", enc).Warn("skipping malformed session key")
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
