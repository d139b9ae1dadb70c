package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/cache"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
)

const (
	CacheKeySourcesTotal  = "statistics:sources:total"
	CacheKeySourcesReady  = "statistics:sources:ready"
	CacheKeyMessagesDaily = "statistics:messages:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyUsers         = "statistics:users:total"
	CacheExpiration       = 30 * time.Minute
)

// StatisticsData holds the aggregate numbers shown on the admin dashboard
type StatisticsData struct {
	TotalUsers    int
	TotalSources  int
	ReadySources  int
	TodayMessages int
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached statistics are stale
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the statistics cache when stale
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		log.Println("Refreshing statistics cache...")
		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error refreshing statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to refresh the cache
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache recomputes all statistics and stores them in Redis
func UpdateStatisticsCache() error {
	db := database.GetDB()

	var totalSources int64
	if err := db.Model(&models.Source{}).Count(&totalSources).Error; err != nil {
		log.Printf("Error counting sources: %v", err)
		return err
	}

	var readySources int64
	if err := db.Model(&models.Source{}).Where("status = ?", models.SourceStatusReady).Count(&readySources).Error; err != nil {
		log.Printf("Error counting ready sources: %v", err)
		return err
	}

	var todayMessages int64
	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)
	if err := db.Model(&models.ChatMessage{}).Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(&todayMessages).Error; err != nil {
		log.Printf("Error counting today's messages: %v", err)
		return err
	}

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting users: %v", err)
		return err
	}

	if err := cache.Set(CacheKeySourcesTotal, strconv.FormatInt(totalSources, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeySourcesReady, strconv.FormatInt(readySources, 10), CacheExpiration); err != nil {
		return err
	}
	dailyKey := fmt.Sprintf(CacheKeyMessagesDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(todayMessages, 10), CacheExpiration); err != nil {
		return err
	}
	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		return err
	}

	log.Printf("Statistics updated in cache: Users: %d, Sources: %d (%d ready), Today's Messages: %d",
		totalUsers, totalSources, readySources, todayMessages)
	return nil
}

// GetTotalUsers returns the total number of users from cache or database
func GetTotalUsers() int {
	return cachedCount(CacheKeyUsers, func(count *int64) error {
		return database.GetDB().Model(&models.User{}).Count(count).Error
	})
}

// GetTotalSources returns the total number of sources from cache or database
func GetTotalSources() int {
	return cachedCount(CacheKeySourcesTotal, func(count *int64) error {
		return database.GetDB().Model(&models.Source{}).Count(count).Error
	})
}

// GetReadySources returns the number of searchable sources from cache or database
func GetReadySources() int {
	return cachedCount(CacheKeySourcesReady, func(count *int64) error {
		return database.GetDB().Model(&models.Source{}).Where("status = ?", models.SourceStatusReady).Count(count).Error
	})
}

// GetTodayMessages returns the number of chat messages sent today
func GetTodayMessages() int {
	today := time.Now().Format("2006-01-02")
	return cachedCount(fmt.Sprintf(CacheKeyMessagesDaily, today), func(count *int64) error {
		todayStart, _ := time.Parse("2006-01-02", today)
		todayEnd := todayStart.Add(24 * time.Hour)
		return database.GetDB().Model(&models.ChatMessage{}).
			Where("created_at BETWEEN ? AND ?", todayStart, todayEnd).Count(count).Error
	})
}

// cachedCount reads a cached counter, recomputing and re-caching on miss
func cachedCount(key string, compute func(*int64) error) int {
	val, err := cache.Get(key)
	if err == nil {
		count, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil {
			return 0
		}
		return int(count)
	}

	var count int64
	if err := compute(&count); err != nil {
		log.Printf("Error computing statistic %s: %v", key, err)
		return 0
	}
	if err := cache.Set(key, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
		log.Printf("Error caching statistic %s: %v", key, err)
	}
	return int(count)
}

// GetStatisticsData returns all statistics data as StatisticsData structure
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TotalUsers:    GetTotalUsers(),
		TotalSources:  GetTotalSources(),
		ReadySources:  GetReadySources(),
		TodayMessages: GetTodayMessages(),
	}
}
