package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"littletrack/internal/clmetrics"
	"littletrack/internal/clmiddleware"
	"littletrack/internal/clredis"
	handlers_analytics "littletrack/internal/handlers/analytics"
	"littletrack/internal/models/clanalytics"
	"littletrack/internal/models/cldb"
	"littletrack/internal/models/clconfig"
	"littletrack/internal/models/cllog"
	"littletrack/internal/models/cltracking"
	"littletrack/internal/models/clusers"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const VERSION string = "0.1.0"

// global instance
var (
	db            *gorm.DB
	configuration *clconfig.Config
	configFile    string
	BuildID       string
	redisClient   *redis.Client
	tracker       *cltracking.Tracker
	analytics     *clanalytics.AnalyticsService
	retention     *cron.Cron
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func parseCommandLineArgs() (configFile string, shouldCreateExample bool, versionDisplay bool, err error) {
	var config = flag.String("config", "", "YAML configuration file")
	var example = flag.Bool("example", false, "Create an example configuration file")
	var version = flag.Bool("version", false, "Print the version")
	flag.Parse()

	if *version {
		return "", false, true, nil
	}

	if *example {
		return "", true, false, nil
	}

	if *config == "" {
		return "", false, false, fmt.Errorf("configuration file required")
	}

	return *config, false, false, nil
}

func initConfiguration() {
	file, shouldCreateExample, versionDisplay, err := parseCommandLineArgs()
	if err != nil {
		fmt.Println("Usage:")
		fmt.Println("  littletrack -config littletrack.yaml")
		fmt.Println("  littletrack -example  (create an example file)")
		fmt.Println("  littletrack -version  (print the version)")
		os.Exit(1)
	}

	if versionDisplay {
		println(VERSION)
		os.Exit(0)
	}

	clconfig.CreateExample(shouldCreateExample, file)

	conf, err := clconfig.LoadConfig(file)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	configuration = conf
	configFile = file
}

func initDatabase(ctx context.Context) error {
	var err error
	db, err = cldb.Open(configuration.Database, configuration.Logger.Level)
	if err != nil {
		return err
	}

	models := append(cltracking.Models(), &clusers.User{})
	if err := cldb.Migrate(db, models...); err != nil {
		return err
	}

	admin, err := clusers.EnsureAdmin(ctx, db, configuration.User)
	if err != nil {
		return err
	}

	// the clear text pass never stays on disk
	if admin != nil && configuration.User.Pass != "" {
		configuration.User.Hash = admin.Hash
		configuration.User.Pass = ""
		if configFile != "" {
			if err := clconfig.WriteConfigYaml(configFile, configuration); err != nil {
				return err
			}
		}
	}
	return nil
}

func initTracking(ctx context.Context) error {
	settings, err := cltracking.NewSettings(configuration.Tracking)
	if err != nil {
		return err
	}

	redisClient, err = clredis.Open(ctx, configuration.Database.Redis)
	if err != nil {
		return err
	}
	analytics = clanalytics.NewAnalyticsService(db, clredis.NewStore(redisClient))
	tracker = cltracking.NewTracker(db, settings, cltracking.WithObserver(analytics))

	retention, err = clanalytics.StartRetention(db, configuration.Tracking.RetentionDays)
	return err
}

func newServer() *gin.Engine {
	if configuration.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	if configuration.TrustedProxies != nil {
		if err := r.SetTrustedProxies(configuration.TrustedProxies); err != nil {
			log.Warn().Err(err).Msg("Invalid trusted proxies")
		}
	}
	if configuration.TrustedPlatform != "" {
		switch configuration.TrustedPlatform {
		case "cloudflare":
			r.TrustedPlatform = gin.PlatformCloudflare
		case "google":
			r.TrustedPlatform = gin.PlatformGoogleAppEngine
		case "flyio":
			r.TrustedPlatform = gin.PlatformFlyIO
		default:
			r.TrustedPlatform = configuration.TrustedPlatform
		}
	}

	return r
}

func setMiddleware(r *gin.Engine) {
	// logger, recovery, metrics, gzip and sessions
	clmiddleware.InitMiddleware(r, configuration)

	// visitor cookie, then tracking
	issuer := cltracking.NewCookieIssuer(cltracking.NewTokenGenerator(cltracking.VisitorKeyExists(db)))
	r.Use(clmiddleware.NewCookieMiddleware(issuer, tracker.Settings().CookieName(), configuration.Session).Middleware())
	r.Use(clmiddleware.NewAnalyticsMiddleware(tracker, configuration.Session.MaxAge).Middleware())
}

func setRoutes(r *gin.Engine) {
	// middleware rate limiter
	middlewareLimiter := clmiddleware.NewLimiter(time.Minute, 20)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	r.GET("/", indexHandler)
	r.GET("/health", healthHandler)

	api := r.Group("/api")
	{
		api.POST("/login", middlewareLimiter, loginHandler)
		api.POST("/logout", logoutHandler)
	}

	analyticsHandler := handlers_analytics.NewAnalyticsHandler(analytics)
	admin := r.Group("/admin/api/tracking")
	admin.Use(clmiddleware.AuthRequired(), middlewareLimiter)
	{
		admin.GET("/realtime", analyticsHandler.GetRealtimeStats)
		admin.GET("/stats", analyticsHandler.GetStats)
	}
}

func startServer(r *gin.Engine) {
	if configuration.Listen.Metrics != "" {
		clmetrics.MustRegister(prometheus.DefaultRegisterer)
		log.Info().Msgf("Metrics available on http://%s/metrics", configuration.Listen.Metrics)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(configuration.Listen.Metrics, mux); err != nil {
				log.Error().Err(err).Msg("Metrics listener stopped")
			}
		}()
	}

	log.Info().Msgf("Website started on http://%s", configuration.Listen.Website)
	if err := r.Run(configuration.Listen.Website); err != nil {
		log.Fatal().Err(err).Msg("Website stopped")
	}
}

func main() {
	if BuildID == "" {
		BuildID = VERSION
	}

	initConfiguration()
	if err := cllog.InitLogger(configuration.Logger, configuration.Production); err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	clconfig.DisplayConfiguration(configuration, BuildID)

	ctx := context.Background()
	if err := initDatabase(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database initialisation failed")
	}
	if err := initTracking(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tracking initialisation failed")
	}
	if retention != nil {
		defer retention.Stop()
	}

	r := newServer()

	setMiddleware(r)
	setRoutes(r)

	startServer(r)
}

// ============= HANDLERS =============

func indexHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "littletrack",
		"version": BuildID,
	})
}

func healthHandler(c *gin.Context) {
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		log.Error().Err(err).Msg("Health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func loginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := clusers.Authenticate(c.Request.Context(), db, req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, clusers.ErrInvalidCredentials) {
			log.Error().Err(err).Msg("Login error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login error"})
			return
		}
		log.Warn().Str("user", req.Username).Str("ip", clmiddleware.ClientIP(c)).Msg("Failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	log.Info().Str("user", req.Username).Str("ip", clmiddleware.ClientIP(c)).Msg("Successful login")

	session := sessions.Default(c)
	session.Set(clmiddleware.SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged in"})
}

func logoutHandler(c *gin.Context) {
	if err := tracker.EndSession(c.Request.Context(), clmiddleware.SessionKey(c)); err != nil {
		log.Error().Err(err).Msg("Ending visitor session failed")
	}

	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
