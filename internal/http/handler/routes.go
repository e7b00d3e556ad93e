package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/auth"
	"docvault/internal/events"
	"docvault/internal/jobstore"
	"docvault/internal/model"
	"docvault/internal/service"
	"docvault/internal/storage"
)

const healthCheckTimeout = 2 * time.Second

// Pinger probes the scanning daemon. Implemented by scanner.Client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the HTTP surface needs. Handlers stay free of
// business logic; they parse, delegate and translate errors.
type Deps struct {
	DB        *sql.DB
	Docs      service.DocumentService
	Scans     service.ScanService
	Store     storage.Storage
	Jobs      jobstore.Store
	Publisher events.Publisher
	Scanner   Pinger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	// Health endpoint with a per-dependency status map.
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
		defer cancel()

		deps := fiber.Map{
			"database": healthStatus(d.DB.PingContext(ctx)),
			"storage":  healthStatus(d.Store.HealthCheck(ctx)),
			"redis":    healthStatus(d.Jobs.HealthCheck(ctx)),
			"rabbitmq": healthStatus(d.Publisher.HealthCheck(ctx)),
			"clamav":   healthStatus(d.Scanner.Ping(ctx)),
		}

		status := fiber.StatusOK
		overall := "healthy"
		for _, v := range deps {
			if v != "healthy" {
				status = fiber.StatusServiceUnavailable
				overall = "degraded"
				break
			}
		}
		return c.Status(status).JSON(fiber.Map{"status": overall, "dependencies": deps})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Get("/documents", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := d.Docs.List(c.UserContext(), p, service.ListQuery{
			OwnerID: c.Query("owner_id"),
			Tag:     c.Query("tag"),
			Status:  model.DocumentStatus(c.Query("status")),
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	})

	// Upload document endpoint (multipart/form-data, field name: file)
	app.Post("/documents", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		meta := service.UploadMeta{
			Filename:    fh.Filename,
			ContentType: ct,
			Title:       c.FormValue("title"),
			Description: c.FormValue("description"),
			Tags:        splitTags(c.FormValue("tags")),
			SessionID:   c.FormValue("session_id"),
		}
		if raw := c.FormValue("attributes"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &meta.Attributes); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_ATTRIBUTES", "attributes must be a JSON object of strings")
			}
		}

		res, err := d.Docs.Upload(c.UserContext(), p, f, meta, fh.Size)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	app.Get("/documents/:id", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		detail, err := d.Docs.Get(c.UserContext(), p, c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(detail)
	})

	app.Get("/documents/:id/audit", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		limit, err := strconv.Atoi(c.Query("limit", "20"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		entries, err := d.Docs.AuditTrail(c.UserContext(), p, c.Params("id"), limit, offset)
		if err != nil {
			return writeServiceError(c, err)
		}
		if entries == nil {
			entries = []model.AuditLog{}
		}
		return c.JSON(fiber.Map{"entries": entries, "limit": limit, "offset": offset})
	})

	app.Get("/documents/:id/download", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		url, err := d.Docs.Download(c.UserContext(), p, c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"download_url": url, "expires_in": int(time.Hour.Seconds())})
	})

	app.Patch("/documents/:id", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		var body struct {
			Title       *string               `json:"title"`
			Description *string               `json:"description"`
			Tags        []string              `json:"tags"`
			Attributes  map[string]string     `json:"attributes"`
			Status      *model.DocumentStatus `json:"status"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		doc, err := d.Docs.Update(c.UserContext(), p, c.Params("id"), service.DocumentUpdate{
			Title:       body.Title,
			Description: body.Description,
			Tags:        body.Tags,
			Attributes:  body.Attributes,
			Status:      body.Status,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	})

	app.Delete("/documents/:id", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		if err := d.Docs.Delete(c.UserContext(), p, c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Rescan an existing document.
	app.Post("/documents/:id/scan", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		if err := d.Docs.VerifyAccess(c.UserContext(), p, c.Params("id")); err != nil {
			return writeServiceError(c, err)
		}
		scanID, err := d.Scans.Enqueue(c.UserContext(), c.Params("id"), p.UserID, p.TenantID)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"scan_id": scanID, "status": string(model.ScanStatusPending)})
	})

	app.Get("/documents/:id/scans/latest", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		detail, err := d.Docs.Get(c.UserContext(), p, c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		if detail.LatestScan == nil {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document has never been scanned")
		}
		return c.JSON(detail.LatestScan)
	})

	app.Get("/scans/:scanId", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		job, err := d.Scans.GetJob(c.UserContext(), c.Params("scanId"))
		if err != nil {
			return writeServiceError(c, err)
		}
		if job.TenantID != p.TenantID {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "scan job not found")
		}
		return c.JSON(job)
	})

	app.Post("/upload-sessions", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		var body struct {
			Filename     string `json:"filename"`
			ContentType  string `json:"content_type"`
			ExpectedSize int64  `json:"expected_size"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		session, err := d.Docs.CreateSession(c.UserContext(), p, body.Filename, body.ContentType, body.ExpectedSize)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	app.Get("/upload-sessions/:id", func(c *fiber.Ctx) error {
		p, err := principalFrom(c)
		if err != nil {
			return writeServiceError(c, err)
		}
		session, err := d.Docs.GetSession(c.UserContext(), p, c.Params("id"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(session)
	})
}

func principalFrom(c *fiber.Ctx) (auth.Principal, error) {
	return auth.FromHeaders(c.Get("X-User-ID"), c.Get("X-Tenant-ID"), c.Get("X-Scopes"))
}

func healthStatus(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
