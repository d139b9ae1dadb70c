package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/fluxoalfa/fluxoalfa/app/models"
	"github.com/fluxoalfa/fluxoalfa/app/repository"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/database"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/jobqueue"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/rag"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/statistics"
	"github.com/fluxoalfa/fluxoalfa/internal/pkg/usercontext"
)

const defaultPageSize = 25

type createSourceRequest struct {
	Title   string `json:"title"`
	RawText string `json:"raw_text"`
}

func sourceIngestor() *rag.Ingestor {
	return rag.NewIngestor(database.GetDB(), jobqueue.GetManager().GetQueue())
}

// HandleAdminCreateSource ingests a new knowledge-base source. Chunking runs
// synchronously; embedding is queued.
func HandleAdminCreateSource(c *fiber.Ctx) error {
	var req createSourceRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	source, err := sourceIngestor().CreateSource(ctx, req.Title, req.RawText, usercontext.GetUserID(c))
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	go statistics.UpdateStatisticsCache()

	return c.Status(fiber.StatusCreated).JSON(sourceResponse(source))
}

// HandleAdminListSources lists sources with optional search.
func HandleAdminListSources(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetSourceRepository()

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		sources, err := repo.Search(q)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Search failed")
		}
		return c.JSON(fiber.Map{"sources": sourceList(sources), "total": len(sources)})
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	sources, err := repo.List((page-1)*defaultPageSize, defaultPageSize)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load sources")
	}
	total, err := repo.Count()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count sources")
	}

	return c.JSON(fiber.Map{
		"sources":   sourceList(sources),
		"total":     total,
		"page":      page,
		"page_size": defaultPageSize,
	})
}

// HandleAdminGetSource returns one source with chunk progress.
func HandleAdminGetSource(c *fiber.Ctx) error {
	source, errResp := loadSourceByUUID(c)
	if errResp != nil {
		return errResp(c)
	}

	repo := repository.GetGlobalFactory().GetSourceRepository()
	pending, err := repo.CountPendingChunks(source.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count chunks")
	}

	resp := sourceResponse(source)
	resp["chunks_pending_embedding"] = pending
	return c.JSON(resp)
}

// HandleAdminReindexSource re-chunks a source and queues fresh embeddings.
func HandleAdminReindexSource(c *fiber.Ctx) error {
	source, errResp := loadSourceByUUID(c)
	if errResp != nil {
		return errResp(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	updated, err := sourceIngestor().ReindexSource(ctx, source.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Reindex failed")
	}

	return c.JSON(sourceResponse(updated))
}

// HandleAdminDeleteSource removes a source and its chunks.
func HandleAdminDeleteSource(c *fiber.Ctx) error {
	source, errResp := loadSourceByUUID(c)
	if errResp != nil {
		return errResp(c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sourceIngestor().DeleteSource(ctx, source.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Delete failed")
	}

	go statistics.UpdateStatisticsCache()

	return c.JSON(fiber.Map{"message": "source deleted"})
}

func loadSourceByUUID(c *fiber.Ctx) (*models.Source, func(*fiber.Ctx) error) {
	sourceUUID := strings.TrimSpace(c.Params("uuid"))
	if sourceUUID == "" {
		return nil, func(c *fiber.Ctx) error {
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "Missing source uuid")
		}
	}

	repo := repository.GetGlobalFactory().GetSourceRepository()
	source, err := repo.GetByUUID(sourceUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, func(c *fiber.Ctx) error {
				return jsonError(c, fiber.StatusNotFound, "not_found", "Source not found")
			}
		}
		return nil, func(c *fiber.Ctx) error {
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load source")
		}
	}
	return source, nil
}

func sourceResponse(s *models.Source) fiber.Map {
	return fiber.Map{
		"uuid":        s.UUID,
		"title":       s.Title,
		"status":      s.Status,
		"chunk_count": s.ChunkCount,
		"archive_key": s.ArchiveKey,
		"indexed_at":  formatTimePtr(s.IndexedAt),
		"created_at":  s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func sourceList(sources []models.Source) []fiber.Map {
	items := make([]fiber.Map, 0, len(sources))
	for i := range sources {
		items = append(items, sourceResponse(&sources[i]))
	}
	return items
}
