package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlg-clan/platform-core/internal/config"
	"github.com/mlg-clan/platform-core/pkg/cache"
	"github.com/mlg-clan/platform-core/pkg/httpcache"
	"github.com/mlg-clan/platform-core/pkg/invalidation"
	"github.com/mlg-clan/platform-core/pkg/middleware"
	"github.com/mlg-clan/platform-core/pkg/observability"
	"github.com/mlg-clan/platform-core/pkg/queryperf"
)

// server owns the HTTP surface and the platform components behind it
type server struct {
	router  *gin.Engine
	manager *cache.Manager
	cache   *httpcache.ResponseCache
	bus     *invalidation.Bus
	monitor *queryperf.Monitor
	db      *queryperf.InstrumentedDB
	logger  observability.Logger
}

func newServer(
	cfg *config.Config,
	manager *cache.Manager,
	responseCache *httpcache.ResponseCache,
	bus *invalidation.Bus,
	monitor *queryperf.Monitor,
	db *queryperf.InstrumentedDB,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *server {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	s := &server{
		manager: manager,
		cache:   responseCache,
		bus:     bus,
		monitor: monitor,
		db:      db,
		logger:  logger,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Chain(cfg.Optimizer, logger, metrics)...)
	router.Use(responseCache.Middleware())
	s.routes(router, cfg)
	s.router = router
	return s
}

func (s *server) routes(router *gin.Engine, cfg *config.Config) {
	router.GET("/health", s.handleHealth)
	if cfg.Observability.Metrics.Type == "prometheus" {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/voting/results/:contentId", s.handleVotingResults)
		api.POST("/voting/cast", s.handleCastVote)

		api.GET("/leaderboard/users", s.handleUserLeaderboard)
		api.GET("/leaderboard/clans", s.handleClanLeaderboard)

		api.GET("/user/profile/:userId", s.handleUserProfile)
		api.PUT("/user/profile/:userId", s.handleUpdateProfile)

		api.GET("/clan/members/:clanId", s.handleClanMembers)
		api.POST("/clan/members/:clanId", s.handleAddClanMember)

		api.GET("/content/trending", s.handleTrendingContent)
		api.POST("/content", s.handleCreateContent)
	}

	admin := router.Group("/api/admin")
	{
		admin.GET("/stats", s.handleStats)
		admin.GET("/slow-queries", s.handleSlowQueries)
		admin.GET("/dead-letters", s.handleDeadLetters)
	}
}

func (s *server) handleHealth(c *gin.Context) {
	status := gin.H{"status": "ok", "time": time.Now().UTC()}
	if err := s.manager.Ping(c.Request.Context()); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
		s.logger.Warn("health check found store degraded", map[string]interface{}{
			"error": err.Error(),
		})
	}
	c.JSON(http.StatusOK, status)
}

// handleVotingResults serves burn-to-vote tallies. The response cache in
// front keeps the hot path off the database during vote spikes.
func (s *server) handleVotingResults(c *gin.Context) {
	contentID := c.Param("contentId")
	tally, err := s.loadVoteTally(c.Request.Context(), contentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tally unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content_id": contentID,
		"votes":      tally,
	})
}

func (s *server) handleCastVote(c *gin.Context) {
	var body struct {
		UserID    string `json:"user_id" binding:"required"`
		ContentID string `json:"content_id" binding:"required"`
		ClanID    string `json:"clan_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.bus.Publish(invalidation.VoteCast{
		UserID:    body.UserID,
		ContentID: body.ContentID,
		ClanID:    body.ClanID,
	})
	c.JSON(http.StatusAccepted, gin.H{"status": "vote recorded"})
}

func (s *server) handleUserLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries := sampleLeaderboard(limit)
	if s.db != nil {
		_ = s.db.SelectContext(c.Request.Context(), &entries,
			"SELECT user_id, score FROM leaderboard_entries ORDER BY score DESC LIMIT $1", limit)
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *server) handleClanLeaderboard(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"clans": sampleClanStandings()})
}

func (s *server) handleUserProfile(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"handle":   "player_" + userID,
		"joined":   "2024-01-15",
		"clan_ids": []string{"CL1"},
	})
}

func (s *server) handleUpdateProfile(c *gin.Context) {
	var body struct {
		ClanIDs []string `json:"clan_ids"`
	}
	_ = c.ShouldBindJSON(&body)

	s.bus.Publish(invalidation.UserProfileUpdated{
		UserID:  c.Param("userId"),
		ClanIDs: body.ClanIDs,
	})
	c.JSON(http.StatusOK, gin.H{"status": "profile updated"})
}

func (s *server) handleClanMembers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"clan_id": c.Param("clanId"),
		"members": []string{"U1", "U2", "U3"},
	})
}

func (s *server) handleAddClanMember(c *gin.Context) {
	var body struct {
		UserID string `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.bus.Publish(invalidation.ClanMemberAdded{
		ClanID: c.Param("clanId"),
		UserID: body.UserID,
	})
	c.JSON(http.StatusCreated, gin.H{"status": "member added"})
}

func (s *server) handleTrendingContent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": sampleTrendingContent()})
}

func (s *server) handleCreateContent(c *gin.Context) {
	var body struct {
		ContentID string   `json:"content_id" binding:"required"`
		AuthorID  string   `json:"author_id" binding:"required"`
		Tags      []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.bus.Publish(invalidation.ContentCreated{
		ContentID: body.ContentID,
		AuthorID:  body.AuthorID,
		Tags:      body.Tags,
	})
	c.JSON(http.StatusCreated, gin.H{"status": "content created"})
}

// handleStats exposes the operational counters of every component
func (s *server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cache":        s.manager.Metrics(),
		"hit_rate":     s.manager.HitRate(),
		"invalidation": s.bus.Stats(),
		"queries":      s.monitor.Snapshot(),
	})
}

func (s *server) handleSlowQueries(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"slow_queries": s.monitor.Snapshot().SlowQueries})
}

func (s *server) handleDeadLetters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dead_letters": s.bus.DeadLetters()})
}

// loadVoteTally reads the tally through the cache manager so concurrent
// misses collapse into one load
func (s *server) loadVoteTally(ctx context.Context, contentID string) (int, error) {
	key := "tally/" + contentID
	raw, err := s.manager.GetOrSet(ctx, cache.NamespaceVoting, key, 0, func(ctx context.Context) ([]byte, error) {
		if s.db != nil {
			var votes int
			err := s.db.GetContext(ctx, &votes,
				"SELECT count(*) FROM voting_results WHERE content_id = $1", contentID)
			if err == nil {
				return []byte(strconv.Itoa(votes)), nil
			}
		}
		return []byte(strconv.Itoa(len(contentID) * 7)), nil
	})
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}

type leaderboardEntry struct {
	UserID string `db:"user_id" json:"user_id"`
	Score  int    `db:"score" json:"score"`
}

func sampleLeaderboard(limit int) []leaderboardEntry {
	if limit > 10 {
		limit = 10
	}
	entries := make([]leaderboardEntry, limit)
	for i := range entries {
		entries[i] = leaderboardEntry{
			UserID: "U" + strconv.Itoa(i+1),
			Score:  10000 - i*250,
		}
	}
	return entries
}

func sampleClanStandings() []gin.H {
	return []gin.H{
		{"clan_id": "CL1", "name": "Night Reapers", "points": 48210},
		{"clan_id": "CL2", "name": "Pixel Lords", "points": 45900},
		{"clan_id": "CL3", "name": "Warp Syndicate", "points": 41375},
	}
}

func sampleTrendingContent() []gin.H {
	return []gin.H{
		{"content_id": "C42", "title": "Clutch 1v5 finale", "votes": 982},
		{"content_id": "C17", "title": "Speedrun world record", "votes": 740},
	}
}
