package main

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shardscan/models"
	"shardscan/pkg/mercy"
	"shardscan/pkg/ocr"
	"shardscan/pkg/summary"
)

const maxScanUploadBytes = 10 * 1024 * 1024

func setupRoutes(r *gin.Engine) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.GET("/healthz", healthzHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.POST("/scan", scanHandler)
	authGroup.POST("/snapshots", confirmSnapshotHandler)
	authGroup.POST("/pulls", recordPullsHandler)
	authGroup.POST("/mercy/set", setMercyHandler)
	authGroup.GET("/mercy/:userId", getMercyHandler)
	authGroup.POST("/groups/:groupId/summary/refresh", refreshSummaryHandler)
	authGroup.GET("/groups/:groupId/summary", getSummaryHandler)
	authGroup.GET("/debug/scans/:groupId/:threadId/:messageRef", debugScanHandler)
}

func jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		staff, _ := claims["staff"].(bool)
		discordID, _ := claims["discord_id"].(string)
		c.Set("username", username)
		c.Set("staff", staff)
		c.Set("discord_id", discordID)
		c.Next()
	}
}

func meHandler(c *gin.Context) {
	usernameVal, _ := c.Get("username")
	if usernameVal == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing username"})
		return
	}
	staff, _ := c.Get("staff")
	c.JSON(http.StatusOK, gin.H{"username": usernameVal, "staff": staff})
}

func registerHandler(c *gin.Context) {
	var req struct {
		Username  string `json:"username" binding:"required"`
		Password  string `json:"password" binding:"required"`
		DiscordID string `json:"discord_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := RegisterUser(req.Username, req.Password, req.DiscordID); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully"})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username":   user.Username,
		"staff":      user.Staff,
		"discord_id": user.DiscordID,
		"exp":        time.Now().Add(time.Hour * 24).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString})
}

// scanHandler runs the OCR pipeline over an uploaded screenshot. The scan is
// a preview: nothing is persisted until the caller confirms via /snapshots.
func scanHandler(c *gin.Context) {
	groupID := c.PostForm("group_id")
	threadID := c.PostForm("thread_id")
	messageRef := c.PostForm("message_ref")
	if groupID == "" || messageRef == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group_id and message_ref required"})
		return
	}

	// A re-posted screenshot costs a cache lookup, not another OCR pass.
	if cached, ok := scanCache.Get(groupID, threadID, messageRef); ok {
		c.JSON(http.StatusOK, scanResponse(messageRef, cached, true))
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image missing"})
		return
	}
	if file.Size > maxScanUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large (max 10MB)"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image unreadable"})
		return
	}
	defer f.Close()
	imageBytes, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image unreadable"})
		return
	}

	var result *ocr.ScanResult
	start := time.Now()
	err = workers.Run(c.Request.Context(), func() error {
		var scanErr error
		result, scanErr = scanPipeline.Scan(c.Request.Context(), imageBytes)
		return scanErr
	})
	scanDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		scansTotal.WithLabelValues("error").Inc()
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	scansTotal.WithLabelValues(result.Status).Inc()
	if result.UsedFallback {
		fallbackScans.Inc()
	}
	for _, rd := range result.Readings {
		if rd.Low {
			lowConfidenceReadings.WithLabelValues(rd.Shard.String()).Inc()
		}
	}
	scanCache.Put(groupID, threadID, messageRef, result)
	c.JSON(http.StatusOK, scanResponse(messageRef, result, false))
}

func scanResponse(messageRef string, result *ocr.ScanResult, cached bool) gin.H {
	return gin.H{
		"message_ref":   messageRef,
		"status":        result.Status,
		"used_fallback": result.UsedFallback,
		"readings":      result.Readings,
		"low_count":     result.LowCount(),
		"cached":        cached,
	}
}

// confirmSnapshotHandler records a confirmed counter set, either straight
// from an accepted scan or hand-corrected. Confirming the same message twice
// returns the original snapshot.
func confirmSnapshotHandler(c *gin.Context) {
	var req struct {
		GroupID    string         `json:"group_id" binding:"required"`
		ThreadID   string         `json:"thread_id"`
		UserID     string         `json:"user_id" binding:"required"`
		UserName   string         `json:"user_name"`
		MessageRef string         `json:"message_ref" binding:"required"`
		Counts     map[string]int `json:"counts" binding:"required"`
		Source     string         `json:"source"`
		Confidence float64        `json:"confidence"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}
	if req.Source != "ocr" && req.Source != "manual" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source must be ocr or manual"})
		return
	}
	counts := make(map[models.ShardType]int, len(req.Counts))
	for k, v := range req.Counts {
		st := models.ShardType(strings.ToLower(k))
		if !st.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown shard type: " + k})
			return
		}
		if v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "counts must be non-negative"})
			return
		}
		counts[st] = v
	}

	snap := &models.Snapshot{
		GroupID:    req.GroupID,
		UserID:     req.UserID,
		UserName:   req.UserName,
		MessageRef: req.MessageRef,
		TakenAt:    time.Now().UTC(),
		Source:     req.Source,
		Confidence: req.Confidence,
	}
	snap.SetCounts(counts)

	stored, err := dataStore.AppendSnapshot(c.Request.Context(), snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot not recorded"})
		return
	}
	scanCache.Invalidate(req.GroupID, req.ThreadID, req.MessageRef)

	// The live weekly aggregate follows every confirmed snapshot. A refresh
	// failure is logged, not surfaced: the snapshot row is already durable
	// and the next refresh repairs the artifact.
	if _, created, err := summaries.Refresh(c.Request.Context(), req.GroupID); err != nil {
		appLog.Warn().Err(err).Str("group", req.GroupID).Msg("summary refresh after snapshot failed")
	} else if created {
		summaryRefreshes.WithLabelValues("create").Inc()
	} else {
		summaryRefreshes.WithLabelValues("edit").Inc()
	}

	c.JSON(http.StatusOK, gin.H{"id": stored.ID, "duplicate": stored != snap, "snapshot": stored})
}

// recordPullsHandler appends a batch of pulls to the mercy ledger.
func recordPullsHandler(c *gin.Context) {
	actor := c.GetString("username")
	var req struct {
		GroupID        string `json:"group_id"`
		UserID         string `json:"user_id" binding:"required"`
		ShardType      string `json:"shard_type" binding:"required"`
		Quantity       int    `json:"quantity" binding:"required"`
		Legendary      bool   `json:"legendary"`
		Guaranteed     bool   `json:"guaranteed"`
		Extra          bool   `json:"extra"`
		IdempotencyKey string `json:"idempotency_key"`
		MessageRef     string `json:"message_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, resets, err := ledger.RecordPulls(c.Request.Context(), mercy.PullBatch{
		GroupID:   req.GroupID,
		UserID:    req.UserID,
		ShardType: models.ShardType(strings.ToLower(req.ShardType)),
		Quantity:  req.Quantity,
		Flags: models.RarityFlags{
			Legendary:  req.Legendary,
			Guaranteed: req.Guaranteed,
			Extra:      req.Extra,
		},
		IdempotencyKey: req.IdempotencyKey,
		MessageRef:     req.MessageRef,
		ActorID:        actor,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pullEventsTotal.WithLabelValues("pull").Inc()
	if req.Legendary {
		pullEventsTotal.WithLabelValues("legendary").Inc()
	}
	for _, r := range resets {
		mercyResetsTotal.WithLabelValues(string(r.ShardType)).Inc()
	}
	c.JSON(http.StatusOK, gin.H{"state": state, "resets": resets})
}

// setMercyHandler overwrites a pity counter. Staff only: the override is an
// audited correction, not a player-facing operation.
func setMercyHandler(c *gin.Context) {
	if staff, _ := c.Get("staff"); staff != true {
		c.JSON(http.StatusForbidden, gin.H{"error": "staff only"})
		return
	}
	actor := c.GetString("username")
	var req struct {
		UserID    string `json:"user_id" binding:"required"`
		ShardType string `json:"shard_type" binding:"required"`
		Value     *int   `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := ledger.SetMercy(c.Request.Context(), req.UserID, models.ShardType(strings.ToLower(req.ShardType)), *req.Value, actor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pullEventsTotal.WithLabelValues("set").Inc()
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func getMercyHandler(c *gin.Context) {
	states, err := ledger.State(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("userId"), "states": states})
}

func refreshSummaryHandler(c *gin.Context) {
	groupID := c.Param("groupId")
	art, created, err := summaries.Refresh(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}
	if created {
		summaryRefreshes.WithLabelValues("create").Inc()
	} else {
		summaryRefreshes.WithLabelValues("edit").Inc()
	}
	c.JSON(http.StatusOK, summaryResponse(art, created))
}

func getSummaryHandler(c *gin.Context) {
	art, err := summaries.Current(c.Request.Context(), c.Param("groupId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if art == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary for current week"})
		return
	}
	c.JSON(http.StatusOK, summaryResponse(art, false))
}

func summaryResponse(art *models.SummaryArtifact, created bool) gin.H {
	pages, err := summary.DecodePages(art.Pages)
	if err != nil {
		appLog.Warn().Err(err).Uint("artifact", art.ID).Msg("stored pages undecodable")
	}
	return gin.H{
		"group_id":        art.GroupID,
		"week_key":        art.WeekKey,
		"message_ref":     art.MessageRef,
		"live":            art.Live,
		"created":         created,
		"page_count":      art.PageCount,
		"pages":           pages,
		"last_updated_at": art.LastUpdatedAt,
	}
}

// debugScanHandler exposes the pipeline intermediates (anchors, projected
// boxes, binarized crops) for a recent scan so ROI drift can be diagnosed
// from a live system.
func debugScanHandler(c *gin.Context) {
	if staff, _ := c.Get("staff"); staff != true {
		c.JSON(http.StatusForbidden, gin.H{"error": "staff only"})
		return
	}
	result, ok := scanCache.Get(c.Param("groupId"), c.Param("threadId"), c.Param("messageRef"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not cached; re-run it"})
		return
	}
	crops := make(map[string][]byte, len(result.Binarized))
	for st, buf := range result.Binarized {
		crops[st.String()] = buf
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        result.Status,
		"used_fallback": result.UsedFallback,
		"anchors":       result.Anchors,
		"rois":          result.ROIs,
		"readings":      result.Readings,
		"binarized_png": crops,
	})
}

func healthzHandler(c *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
