package stock

import (
	"crypto/subtle"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"stock-ledger/core/ledger"
	"stock-ledger/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	// HeaderActorID carries the acting user's id on mutating requests.
	HeaderActorID = "X-Actor-Id"
	// HeaderActorName carries the acting user's display name.
	HeaderActorName = "X-Actor-Name"
	// HeaderAdminKey must match server.admin_key on operator-only requests.
	HeaderAdminKey = "X-Admin-Key"
)

// Handler handles HTTP requests for the ledger.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the ledger routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/ledger")

	group.Get("/entries/:registry", h.HandleListEntries)
	group.Post("/entries", h.HandleAddEntry)

	entry := group.Group("/entries/:registry/:category/:name")
	entry.Get("/", h.HandleGetEntry)
	entry.Delete("/", h.HandleRemoveEntry)
	entry.Put("/name", h.HandleRenameEntry)
	entry.Put("/quantity", h.HandleSetQuantity)
	entry.Post("/quantity", h.HandleIncrementQuantity)
	entry.Put("/required", h.HandleSetRequired)
	entry.Get("/recipe", h.HandleGetRecipe)
	entry.Put("/recipe", h.HandleSaveRecipe)
	entry.Post("/work", h.HandleStartWork)
	entry.Delete("/work", h.HandleStopWork)
	entry.Post("/tags/:tag", h.HandleTagAdd)
	entry.Delete("/tags/:tag", h.HandleTagRemove)

	group.Post("/links", h.HandleLinkEntries)
	group.Post("/work/start-all", h.HandleStartAll)
	group.Get("/workers", h.HandleListWorkers)

	group.Get("/tags/:registry", h.HandleListTags)
	group.Post("/tags", h.HandleCreateTag)
	group.Delete("/tags/:registry/:tag", h.HandleDeleteTag)
	group.Post("/tag-selections", h.HandleApplyTagSelection)

	group.Get("/history", h.HandleListHistory)
	group.Post("/history/export", h.HandleExportHistory)
	group.Get("/history/archives", h.HandleListArchives)
}

// param returns a decoded copy of a path parameter. Fiber reuses the
// underlying buffer after the handler returns.
func param(c *fiber.Ctx, key string) string {
	raw := strings.Clone(c.Params(key))
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func identity(c *fiber.Ctx) ledger.Identity {
	return ledger.ID(ledger.Registry(param(c, "registry")), param(c, "category"), param(c, "name"))
}

func actorOf(c *fiber.Ctx) (ledger.Actor, error) {
	actor := ledger.Actor{
		UserID:   strings.Clone(strings.TrimSpace(c.Get(HeaderActorID))),
		UserName: strings.Clone(strings.TrimSpace(c.Get(HeaderActorName))),
	}
	if actor.UserID == "" {
		return ledger.Actor{}, errors.New(HeaderActorID + " header is required")
	}
	if actor.UserName == "" {
		actor.UserName = actor.UserID
	}
	return actor, nil
}

func (h *Handler) log(c *fiber.Ctx, actor ledger.Actor) *zap.Logger {
	return logger.WithActor(logger.WithRayID(h.service.logger, c), actor.UserID, actor.UserName)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// statusOf maps ledger errors to HTTP status codes.
func statusOf(err error) int {
	var (
		short    *ledger.InsufficientMaterialsError
		assigned *ledger.AlreadyAssignedError
		partial  *ledger.PartialApplyError
	)
	switch {
	case errors.As(err, &short), errors.As(err, &assigned):
		return fiber.StatusConflict
	case errors.As(err, &partial):
		return fiber.StatusMultiStatus
	case errors.Is(err, ledger.ErrAlreadyExists), errors.Is(err, ledger.ErrNameTaken):
		return fiber.StatusConflict
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrTagNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ledger.ErrMaterialNotFound), errors.Is(err, ledger.ErrInvalidLink):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrExportUnavailable):
		return fiber.StatusNotImplemented
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err the way the front-end shows it. Shortfalls are itemized.
func (h *Handler) fail(c *fiber.Ctx, l *zap.Logger, err error) error {
	status := statusOf(err)
	body := fiber.Map{"error": ledger.Message(err)}

	var short *ledger.InsufficientMaterialsError
	if errors.As(err, &short) {
		body["shortfalls"] = short.Shortfalls
	}

	if status >= fiber.StatusInternalServerError || status == fiber.StatusMultiStatus {
		l.Error("Ledger request failed", zap.Int("status", status), zap.Error(err))
	} else {
		l.Debug("Ledger request rejected", zap.Int("status", status), zap.Error(err))
	}
	return c.Status(status).JSON(body)
}

// applied writes a coordinator result, including partial ones.
func (h *Handler) applied(c *fiber.Ctx, l *zap.Logger, res *ledger.ApplyResult, err error) error {
	if err == nil {
		return c.JSON(res)
	}
	var partial *ledger.PartialApplyError
	if errors.As(err, &partial) && res != nil {
		l.Error("Batch applied partially",
			zap.String("target", res.Target.String()),
			zap.Int("applied", partial.Applied),
			zap.Int("submitted", partial.Submitted),
			zap.Error(err),
		)
		return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
			"error":  ledger.Message(err),
			"result": res,
		})
	}
	return h.fail(c, l, err)
}

// HandleListEntries lists one registry.
// @Summary List Entries
// @Tags ledger
// @Produce json
// @Param registry path string true "raw or crafted"
// @Success 200 {array} ledger.Entry
// @Router /ledger/entries/{registry} [get]
func (h *Handler) HandleListEntries(c *fiber.Ctx) error {
	registry := ledger.Registry(param(c, "registry"))
	if !registry.Valid() {
		return badRequest(c, "unknown registry")
	}
	entries, err := h.service.ledger.Entries(c.Context(), registry)
	if err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	return c.JSON(entries)
}

// HandleGetEntry returns a single entry with its current assignment.
func (h *Handler) HandleGetEntry(c *fiber.Ctx) error {
	id := identity(c)
	e, err := h.service.ledger.Entry(c.Context(), id)
	if err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	out := fiber.Map{"entry": e, "complete": e.IsComplete()}
	if a, ok := h.service.ledger.Workers().AssignmentOf(id); ok {
		out["assignment"] = a
	}
	return c.JSON(out)
}

// HandleAddEntry creates an entry.
// @Summary Add Entry
// @Tags ledger
// @Accept json
// @Produce json
// @Success 201 {object} ledger.Entry
// @Failure 409 {object} map[string]string "Already exists"
// @Router /ledger/entries [post]
func (h *Handler) HandleAddEntry(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var in ledger.NewEntry
	if err := c.BodyParser(&in); err != nil {
		return badRequest(c, "invalid body")
	}
	l := h.log(c, actor)

	e, err := h.service.ledger.AddEntry(c.Context(), in, actor)
	if err != nil {
		return h.fail(c, l, err)
	}
	l.Info("Entry added", zap.String("entry", e.String()))
	return c.Status(fiber.StatusCreated).JSON(e)
}

// HandleRemoveEntry deletes an entry.
func (h *Handler) HandleRemoveEntry(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	l := h.log(c, actor)

	removed, err := h.service.ledger.RemoveEntry(c.Context(), identity(c), actor)
	if err != nil {
		return h.fail(c, l, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ledger.Message(ledger.ErrNotFound)})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type renameRequest struct {
	Name string `json:"name"`
}

// HandleRenameEntry renames an entry.
func (h *Handler) HandleRenameEntry(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	id := identity(c)
	if err := h.service.ledger.RenameEntry(c.Context(), id, req.Name, actor); err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	return c.JSON(id.Renamed(strings.TrimSpace(req.Name)))
}

type valueRequest struct {
	Value *int `json:"value"`
}

type deltaRequest struct {
	Delta *int `json:"delta"`
}

// HandleSetQuantity sets an absolute quantity.
// @Summary Set Quantity
// @Tags ledger
// @Accept json
// @Produce json
// @Success 200 {object} ledger.ApplyResult
// @Success 207 {object} map[string]any "Partially applied"
// @Failure 409 {object} map[string]any "Insufficient materials"
// @Router /ledger/entries/{registry}/{category}/{name}/quantity [put]
func (h *Handler) HandleSetQuantity(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req valueRequest
	if err := c.BodyParser(&req); err != nil || req.Value == nil {
		return badRequest(c, "value is required")
	}
	l := h.log(c, actor)
	res, err := h.service.ledger.SetQuantity(c.Context(), identity(c), *req.Value, actor)
	return h.applied(c, l, res, err)
}

// HandleIncrementQuantity adds a signed delta.
// @Summary Increment Quantity
// @Tags ledger
// @Accept json
// @Produce json
// @Success 200 {object} ledger.ApplyResult
// @Router /ledger/entries/{registry}/{category}/{name}/quantity [post]
func (h *Handler) HandleIncrementQuantity(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req deltaRequest
	if err := c.BodyParser(&req); err != nil || req.Delta == nil {
		return badRequest(c, "delta is required")
	}
	l := h.log(c, actor)
	res, err := h.service.ledger.IncrementQuantity(c.Context(), identity(c), *req.Delta, actor)
	return h.applied(c, l, res, err)
}

// HandleSetRequired changes the target quantity.
func (h *Handler) HandleSetRequired(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req valueRequest
	if err := c.BodyParser(&req); err != nil || req.Value == nil {
		return badRequest(c, "value is required")
	}
	l := h.log(c, actor)
	res, err := h.service.ledger.SetRequired(c.Context(), identity(c), *req.Value, actor)
	return h.applied(c, l, res, err)
}

// HandleGetRecipe returns a crafted entry's recipe.
func (h *Handler) HandleGetRecipe(c *fiber.Ctx) error {
	recipe, err := h.service.ledger.Recipe(c.Context(), identity(c))
	if err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	if recipe == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no recipe"})
	}
	return c.JSON(recipe)
}

type recipeRequest struct {
	Materials []ledger.MaterialLine `json:"materials"`
}

// HandleSaveRecipe replaces a crafted entry's recipe.
func (h *Handler) HandleSaveRecipe(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req recipeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	id := identity(c)
	if err := h.service.ledger.SaveRecipe(c.Context(), id, req.Materials, actor); err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	recipe, err := h.service.ledger.Recipe(c.Context(), id)
	if err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	return c.JSON(recipe)
}

// HandleStartWork assigns the entry to the acting user.
func (h *Handler) HandleStartWork(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	a, err := h.service.ledger.StartWork(c.Context(), identity(c), actor)
	if err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	return c.JSON(a)
}

// HandleStopWork releases the entry. ?reset=true releases it regardless of
// the holder and requires the admin key.
func (h *Handler) HandleStopWork(c *fiber.Ctx) error {
	var actorPtr *ledger.Actor
	if c.QueryBool("reset") {
		if !h.isAdmin(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "worker reset requires the admin key"})
		}
		h.log(c, ledger.Actor{}).Info("Administrative worker reset", zap.String("entry", identity(c).String()))
	} else {
		actor, err := actorOf(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		actorPtr = &actor
	}
	if err := h.service.ledger.StopWork(c.Context(), identity(c), actorPtr); err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) isAdmin(c *fiber.Ctx) bool {
	key := h.service.adminKey
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Get(HeaderAdminKey)), []byte(key)) == 1
}

type startAllRequest struct {
	Entries []ledger.Identity `json:"entries"`
}

// HandleStartAll assigns several entries and itemizes the outcome.
func (h *Handler) HandleStartAll(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req startAllRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	report, err := h.service.ledger.StartAll(c.Context(), req.Entries, actor)
	if err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	return c.JSON(report)
}

// HandleListWorkers returns every current assignment.
func (h *Handler) HandleListWorkers(c *fiber.Ctx) error {
	return c.JSON(h.service.ledger.Workers().Assignments())
}

type linkRequest struct {
	A ledger.Identity `json:"a"`
	B ledger.Identity `json:"b"`
}

// HandleLinkEntries pairs two entries of opposite registries.
func (h *Handler) HandleLinkEntries(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req linkRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.service.ledger.LinkEntries(c.Context(), req.A, req.B, actor); err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListTags lists a registry's tags.
func (h *Handler) HandleListTags(c *fiber.Ctx) error {
	registry := ledger.Registry(param(c, "registry"))
	if !registry.Valid() {
		return badRequest(c, "unknown registry")
	}
	tags, err := h.service.store.ListTags(c.Context(), registry)
	if err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	return c.JSON(tags)
}

type createTagRequest struct {
	Registry ledger.Registry `json:"registry"`
	Name     string          `json:"name"`
	Color    string          `json:"color"`
}

// HandleCreateTag adds an empty tag.
func (h *Handler) HandleCreateTag(c *fiber.Ctx) error {
	var req createTagRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := h.service.ledger.CreateTag(c.Context(), req.Registry, req.Name, req.Color); err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	return c.Status(fiber.StatusCreated).JSON(ledger.Tag{Registry: req.Registry, Name: strings.TrimSpace(req.Name), Color: req.Color})
}

// HandleDeleteTag removes a tag.
func (h *Handler) HandleDeleteTag(c *fiber.Ctx) error {
	deleted, err := h.service.ledger.DeleteTag(c.Context(), ledger.Registry(param(c, "registry")), param(c, "tag"))
	if err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": ledger.Message(ledger.ErrTagNotFound)})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleTagAdd tags an entry and its mirror.
func (h *Handler) HandleTagAdd(c *fiber.Ctx) error {
	return h.changeTag(c, true)
}

// HandleTagRemove untags an entry and its mirror.
func (h *Handler) HandleTagRemove(c *fiber.Ctx) error {
	return h.changeTag(c, false)
}

func (h *Handler) changeTag(c *fiber.Ctx, added bool) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	id, tag := identity(c), param(c, "tag")
	if added {
		err = h.service.ledger.TagAdd(c.Context(), id, tag, actor)
	} else {
		err = h.service.ledger.TagRemove(c.Context(), id, tag, actor)
	}
	if err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleApplyTagSelection submits a multi-entry tag change. The actor always
// comes from the request headers.
func (h *Handler) HandleApplyTagSelection(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	var sel ledger.PendingTagSelection
	if err := c.BodyParser(&sel); err != nil {
		return badRequest(c, "invalid body")
	}
	sel.Actor = actor
	if err := h.service.ledger.ApplyTagSelection(c.Context(), sel); err != nil {
		return h.fail(c, h.log(c, actor), err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListHistory returns the newest events first.
// @Summary List History
// @Tags ledger
// @Produce json
// @Param limit query int false "Maximum events (default 100)"
// @Success 200 {array} ledger.HistoryEvent
// @Router /ledger/history [get]
func (h *Handler) HandleListHistory(c *fiber.Ctx) error {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}
	events, err := h.service.ledger.History(c.Context(), limit)
	if err != nil {
		return h.fail(c, logger.WithRayID(h.service.logger, c), err)
	}
	return c.JSON(events)
}

// HandleExportHistory writes the retained history to object storage.
func (h *Handler) HandleExportHistory(c *fiber.Ctx) error {
	res, err := h.service.ExportHistory(c.Context())
	if err != nil {
		return c.Status(statusOf(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// HandleListArchives lists archived and exported history objects.
func (h *Handler) HandleListArchives(c *fiber.Ctx) error {
	keys, err := h.service.Archives(c.Context())
	if err != nil {
		return c.Status(statusOf(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(keys)
}
