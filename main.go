package main

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"shardscan/pkg/coordinator"
	"shardscan/pkg/mercy"
	"shardscan/pkg/ocr"
	"shardscan/pkg/store"
	"shardscan/pkg/summary"
)

var (
	appLog    zerolog.Logger
	jwtSecret []byte

	dataStore    store.Adapter
	workers      *coordinator.WorkerPool
	scanCache    *ScanCache
	scanPipeline *ocr.Pipeline
	ledger       *mercy.Ledger
	summaries    *summary.Manager
)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()
	appLog = newLogger()

	conf, err := loadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		appLog.Fatal().Err(err).Msg("config invalid")
	}
	jwtSecret = []byte(conf.JWTSecret)

	// Support a lightweight migrate command: `./shardscan migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := initDB(conf); err != nil {
			appLog.Fatal().Err(err).Msg("failed to connect postgres database")
		}
		appLog.Info().Msg("migration and seeding completed")
		return
	}

	if err := initDB(conf); err != nil {
		appLog.Fatal().Err(err).Msg("failed to connect postgres database")
	}
	dataStore = store.NewGormStore(db)

	templates, err := ocr.NewTemplateStore(conf.OCR.TemplateDir, appLog)
	if err != nil {
		appLog.Fatal().Err(err).Str("dir", conf.OCR.TemplateDir).Msg("icon templates unavailable")
	}
	if err := templates.Watch(); err != nil {
		appLog.Warn().Err(err).Msg("template hot reload unavailable")
	}
	defer templates.Close()

	scanPipeline = &ocr.Pipeline{
		Templates:     templates,
		Locator:       ocr.NewLocator(conf.OCR.MatchThreshold, conf.OCR.MinAnchors, appLog),
		Extractor:     ocr.NewTesseractExtractor(conf.OCR.ConfidenceFloor, appLog),
		BandWidthFrac: conf.OCR.BandWidthFrac,
		ROITimeout:    conf.OCR.ROITimeout,
		Log:           appLog,
	}

	locks := coordinator.NewKeyLock()
	retryPolicy := coordinator.RetryPolicy{
		MaxAttempts: conf.Retry.MaxAttempts,
		BaseDelay:   conf.Retry.BaseDelay,
		Log:         appLog,
	}
	workers = coordinator.NewWorkerPool(conf.OCR.Workers)
	scanCache = NewScanCache(conf.Cache.SizeMB, conf.Cache.TTL, appLog)
	ledger = mercy.NewLedger(dataStore, locks, retryPolicy, conf.Mercy.Baseline, appLog)
	summaries = summary.NewManager(dataStore, locks, retryPolicy, conf.Summary.PageSize, appLog)

	r := gin.Default()
	setupRoutes(r)

	appLog.Info().Str("addr", conf.ListenAddr).Msg("listening")
	if err := r.Run(conf.ListenAddr); err != nil {
		appLog.Fatal().Err(err).Msg("server exited")
	}
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
