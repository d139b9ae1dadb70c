package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fluxoalfa/fluxoalfa/internal/pkg/cache"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
)

const (
	sessionMessagesKey = "chat:counters:messages"
	dailyUsagePrefix   = "chat:usage:"

	// Daily usage keys outlive the day they count so a request right at
	// midnight still reads yesterday's closed counter.
	dailyUsageTTL = 48 * time.Hour
)

// AddSessionMessage increments the pending message counter for a chat session in Redis
func AddSessionMessage(sessionID uint) error {
	ctx := context.Background()
	field := strconv.FormatUint(uint64(sessionID), 10)
	return cache.GetClient().HIncrBy(ctx, sessionMessagesKey, field, 1).Err()
}

// IncrementDailyUsage counts one chat message against the user's daily quota
// and returns the new total for today.
func IncrementDailyUsage(userID uint) (int64, error) {
	ctx := context.Background()
	rdb := cache.GetClient()
	key := dailyUsageKey(time.Now())
	field := strconv.FormatUint(uint64(userID), 10)

	count, err := rdb.HIncrBy(ctx, key, field, 1).Result()
	if err != nil {
		return 0, err
	}
	rdb.Expire(ctx, key, dailyUsageTTL)
	return count, nil
}

// GetDailyUsage returns how many chat messages the user sent today.
func GetDailyUsage(userID uint) (int64, error) {
	ctx := context.Background()
	key := dailyUsageKey(time.Now())
	field := strconv.FormatUint(uint64(userID), 10)

	val, err := cache.GetClient().HGet(ctx, key, field).Result()
	if err != nil {
		if err.Error() == "redis: nil" {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func dailyUsageKey(t time.Time) string {
	return dailyUsagePrefix + t.UTC().Format("2006-01-02")
}

// FlushAll flushes pending session message counters to the database
func FlushAll() error {
	return flushHashToTable(sessionMessagesKey, "chat_sessions", "message_count")
}

// flushHashToTable drains a Redis hash atomically and applies batched increments to the table.
// Uses RENAME to a temporary key for atomic drain without losing in-flight increments.
func flushHashToTable(redisKey, table, column string) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	// Build batched UPDATE using CASE WHEN id THEN inc
	type pair struct {
		id  uint64
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	if len(pairs) == 0 {
		return nil
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	// UPDATE <table> SET <column> = <column> + CASE id WHEN ? THEN ? ... END WHERE id IN (...)
	var builder strings.Builder
	args := make([]interface{}, 0, len(pairs)*3)
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE id ")
	for _, p := range pairs {
		builder.WriteString(" WHEN ? THEN ?")
		args = append(args, p.id, p.inc)
	}
	builder.WriteString(" END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("?")
		args = append(args, p.id)
	}
	builder.WriteString(")")

	sql := builder.String()
	db := database.GetDB()
	if err := db.Exec(sql, args...).Error; err != nil {
		return err
	}
	return nil
}
