package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/app/repository"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/jobqueue"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/statistics"
)

// HandleAdminListUsers lists accounts with optional search.
func HandleAdminListUsers(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetUserRepository()

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		users, err := repo.Search(q)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Search failed")
		}
		return c.JSON(fiber.Map{"users": userList(users), "total": len(users)})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	users, err := repo.List((page-1)*defaultPageSize, defaultPageSize)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load users")
	}
	total, err := repo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count users")
	}

	return c.JSON(fiber.Map{
		"users":     userList(users),
		"total":     total,
		"page":      page,
		"page_size": defaultPageSize,
	})
}

// HandleAdminStats returns platform statistics plus a registration timeline.
func HandleAdminStats(c *fiber.Ctx) error {
	data := statistics.GetStatisticsData()

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	daily, err := repository.GetGlobalFactory().GetUserRepository().GetDailyStats(start, end)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load registration stats")
	}

	return c.JSON(fiber.Map{
		"total_users":    data.TotalUsers,
		"total_sources":  data.TotalSources,
		"ready_sources":  data.ReadySources,
		"today_messages": data.TodayMessages,
		"registrations":  daily,
	})
}

// HandleAdminJobs reports queue depth and per-status job counters.
func HandleAdminJobs(c *fiber.Ctx) error {
	manager := jobqueue.GetManager()
	queue := manager.GetQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := queue.GetJobStats(ctx)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load job stats")
	}
	pending, err := queue.GetQueueSize(ctx)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load queue size")
	}
	processing, err := queue.GetProcessingSize(ctx)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load processing size")
	}

	statusCounts := make(map[string]int64, len(stats))
	for status, count := range stats {
		statusCounts[string(status)] = count
	}

	return c.JSON(fiber.Map{
		"running":         manager.IsRunning(),
		"queue_depth":     pending,
		"processing":      processing,
		"status_counters": statusCounts,
	})
}

func userList(users []models.User) []fiber.Map {
	items := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		items = append(items, fiber.Map{
			"id":            u.ID,
			"username":      u.Name,
			"email":         u.Email,
			"role":          u.Role,
			"status":        u.Status,
			"created_at":    u.CreatedAt.UTC().Format(time.RFC3339),
			"last_login_at": formatTimePtr(u.LastLoginAt),
		})
	}
	return items
}
