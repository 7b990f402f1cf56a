package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/hbarker/grant-radar/internal/ai"
	"github.com/hbarker/grant-radar/internal/alert"
	"github.com/hbarker/grant-radar/internal/config"
	"github.com/hbarker/grant-radar/internal/db"
	"github.com/hbarker/grant-radar/internal/ingest"
	"github.com/hbarker/grant-radar/internal/match"
	"github.com/hbarker/grant-radar/internal/models"
)

type Server struct {
	Echo         *echo.Echo
	Store        *db.Store
	Orchestrator *ingest.Orchestrator
	Scorer       *match.Scorer
	Oracle       *ai.OracleClient
	Config       *config.Config
	Log          *zap.Logger
}

func NewServer(cfg *config.Config, store *db.Store, orch *ingest.Orchestrator, oracle *ai.OracleClient, log *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	allowedOrigins := cfg.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:4200"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s := &Server{
		Echo:         e,
		Store:        store,
		Orchestrator: orch,
		Scorer:       match.NewScorer(match.DefaultWeights()),
		Oracle:       oracle,
		Config:       cfg,
		Log:          log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/grants", s.handleListGrants)
	api.GET("/grants/:id", s.handleGetGrant)
	api.POST("/matches", s.handleMatches)
	api.POST("/digest", s.handleDigest)
	api.POST("/digest/confirm", s.handleDigestConfirm)
	api.POST("/feedback", s.handleFeedback)
	api.POST("/flags", s.handleFlag)
	api.POST("/search", s.handleSearch)

	trigger := api.Group("")
	trigger.Use(s.triggerAuthMiddleware)
	trigger.POST("/crawl", s.handleCrawl)
	trigger.POST("/admin/expire", s.handleExpire)
}

func (s *Server) Start() error {
	return s.Echo.Start(":" + s.Config.Port)
}

// triggerAuthMiddleware guards the crawl trigger and admin endpoints with the
// shared secret, compared in constant time.
func (s *Server) triggerAuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.Config.TriggerSecret)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// handleCrawl runs one crawl batch synchronously and reports every source's
// outcome. Source failures are data, not errors: the response is 200 as long
// as the run itself executed.
func (s *Server) handleCrawl(c echo.Context) error {
	batch := -1
	if v := c.QueryParam("batch"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "batch must be a non-negative integer"})
		}
		batch = parsed
	}

	started := time.Now().UTC()
	outcomes := s.Orchestrator.Run(c.Request().Context(), batch)

	if err := s.Store.RecordCrawlRun(c.Request().Context(), batch, started, outcomes); err != nil {
		s.Log.Error("recording crawl run failed", zap.Error(err))
	}

	failed := 0
	totalUpserted := 0
	for _, o := range outcomes {
		if o.Error != nil {
			failed++
		}
		totalUpserted += o.UpsertedCount
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"batch":          batch,
		"batch_count":    s.Orchestrator.BatchCount(),
		"sources":        len(outcomes),
		"failed_sources": failed,
		"upserted":       totalUpserted,
		"outcomes":       outcomes,
	})
}

func (s *Server) handleExpire(c echo.Context) error {
	expired, err := s.Store.ExpireGrants(c.Request().Context(), time.Now().UTC())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"expired_count": len(expired),
		"expired_ids":   expired,
	})
}

func (s *Server) handleListGrants(c echo.Context) error {
	params := db.ListParams{
		Source:    c.QueryParam("source"),
		Sector:    c.QueryParam("sector"),
		LocalOnly: c.QueryParam("local") == "true",
	}
	if v, err := strconv.ParseFloat(c.QueryParam("min_amount"), 64); err == nil && v > 0 {
		params.MinAmount = v
	}
	if v, err := strconv.ParseFloat(c.QueryParam("max_amount"), 64); err == nil && v > 0 {
		params.MaxAmount = v
	}
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		params.Limit = v
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v >= 0 {
		params.Offset = v
	}

	grants, err := s.Store.ListActiveGrants(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"grants": grants,
		"count":  len(grants),
	})
}

func (s *Server) handleGetGrant(c echo.Context) error {
	grant, err := s.Store.GetGrant(c.Request().Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "grant not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, grant)
}

type matchRequest struct {
	OrgID   string                     `json:"org_id"`
	Profile models.OrganisationProfile `json:"profile"`
	Limit   int                        `json:"limit"`
}

// handleMatches scores every active grant against the supplied profile,
// applying the organisation's feedback history when an org_id is given.
func (s *Server) handleMatches(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	signals, err := s.signalsFor(c, req.OrgID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	grants, err := s.Store.ListActiveGrants(c.Request().Context(), db.ListParams{Limit: 500})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	limit := req.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	selector := alert.NewSelector(s.Scorer, 0, limit)
	matches := selector.Select(grants, req.Profile, signals, nil)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

// handleDigest builds the top-N digest for an organisation: unseen grants
// above the configured threshold, best first.
func (s *Server) handleDigest(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.OrgID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "org_id is required"})
	}

	signals, err := s.signalsFor(c, req.OrgID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	notified, err := s.Store.NotifiedGrantIDs(c.Request().Context(), req.OrgID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	grants, err := s.Store.ListActiveGrants(c.Request().Context(), db.ListParams{Limit: 500})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	selector := alert.NewSelector(s.Scorer, s.Config.DigestMinScore, s.Config.DigestTopN)
	candidates := selector.Select(grants, req.Profile, signals, notified)

	return c.JSON(http.StatusOK, map[string]interface{}{
		"digest": candidates,
		"count":  len(candidates),
	})
}

type digestConfirmRequest struct {
	OrgID       string   `json:"org_id"`
	ExternalIDs []string `json:"external_ids"`
}

// handleDigestConfirm records that a digest was actually delivered, so its
// grants drop out of future digests. Idempotent.
func (s *Server) handleDigestConfirm(c echo.Context) error {
	var req digestConfirmRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.OrgID == "" || len(req.ExternalIDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "org_id and external_ids are required"})
	}

	if err := s.Store.MarkNotified(c.Request().Context(), req.OrgID, req.ExternalIDs); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"marked": len(req.ExternalIDs)})
}

type feedbackRequest struct {
	OrgID      string `json:"org_id"`
	ExternalID string `json:"external_id"`
	Verdict    string `json:"verdict"`
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	verdict := models.FeedbackVerdict(req.Verdict)
	if req.OrgID == "" || req.ExternalID == "" ||
		(verdict != models.VerdictLiked && verdict != models.VerdictDisliked) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "org_id, external_id and a liked/disliked verdict are required"})
	}

	grant, err := s.Store.GetGrant(c.Request().Context(), req.ExternalID)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "grant not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	event := models.FeedbackEvent{
		OrgID:      req.OrgID,
		ExternalID: req.ExternalID,
		Sectors:    grant.Sectors,
		Verdict:    verdict,
	}
	if err := s.Store.RecordFeedback(c.Request().Context(), event); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "recorded"})
}

type flagRequest struct {
	OrgID      string `json:"org_id"`
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

// handleFlag lets an organisation report a dead or misleading listing. At
// the configured threshold of distinct reporters the grant is deactivated.
func (s *Server) handleFlag(c echo.Context) error {
	var req flagRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.OrgID == "" || req.ExternalID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "org_id and external_id are required"})
	}

	count, deactivated, err := s.Store.FlagGrant(c.Request().Context(),
		req.OrgID, req.ExternalID, req.Reason, s.Config.FlagThreshold)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"flag_count":  count,
		"deactivated": deactivated,
	})
}

type searchRequest struct {
	Query   string                     `json:"query"`
	OrgID   string                     `json:"org_id"`
	Profile models.OrganisationProfile `json:"profile"`
}

// handleSearch answers a free-text query by prefiltering stored grants and
// asking the oracle to rank the survivors.
func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	grants, err := s.Store.ListActiveGrants(c.Request().Context(), db.ListParams{Limit: 500})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	candidates := ai.Prefilter(grants, req.Query, req.Profile, 0)
	if len(candidates) == 0 {
		return c.JSON(http.StatusOK, map[string]interface{}{"results": []ai.RankedGrant{}})
	}

	ranked, err := s.Oracle.RankFreeText(c.Request().Context(), req.Query, ai.BuildOrgContext(req.Profile), candidates)
	if err != nil {
		s.Log.Warn("oracle ranking failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "search ranking unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"results": ranked})
}

// signalsFor loads and aggregates an organisation's feedback history. An
// empty org_id yields empty signals.
func (s *Server) signalsFor(c echo.Context, orgID string) (models.FeedbackSignals, error) {
	if orgID == "" {
		return models.FeedbackSignals{}, nil
	}
	events, err := s.Store.FeedbackEventsFor(c.Request().Context(), orgID)
	if err != nil {
		return models.FeedbackSignals{}, err
	}
	return match.BuildSignals(events, match.DefaultWeights()), nil
}
