package app

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"device_loan_service/db"
	"device_loan_service/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// aliases for handlers
type Ctx = gin.Context
type H = gin.H

// App aggregates the process-wide dependencies; built once in main and passed
// down, never reached through globals.
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Config Config

	appSess *session.AppSessionStore

	ctx    context.Context
	cancel context.CancelFunc
}

type Config struct {
	RedisAddr     string
	RedisPwd      string
	WebOrigin     string
	SessionTTL    time.Duration
	SweepInterval time.Duration
	RateLimit     int
	RateWindow    time.Duration

	BootstrapUsername string
	BootstrapPassword string
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

// Context is cancelled by Close; background work (the overdue sweeper) hangs
// off it.
func (a *App) Context() context.Context { return a.ctx }

func MustNew() *App {
	cfg := loadConfig()

	dbConn := db.ConnectDB()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	r := gin.Default()
	useCORS(r, cfg.WebOrigin)

	appCtx, appCancel := context.WithCancel(context.Background())
	a := &App{
		Router: r, DB: dbConn, RDB: rdb, Config: cfg,
		appSess: session.NewAppSessionStore(rdb, cfg.SessionTTL),
		ctx:     appCtx, cancel: appCancel,
	}
	return a
}

func (a *App) Close() {
	a.cancel()
	_ = a.RDB.Close()
}

func loadConfig() Config {
	get := func(k, def string) string {
		v := os.Getenv(k)
		if v == "" {
			return def
		}
		return v
	}
	getInt := func(k string, def int) int {
		if n, err := strconv.Atoi(os.Getenv(k)); err == nil && n > 0 {
			return n
		}
		return def
	}

	ttl := time.Duration(getInt("SESSION_TTL_SECONDS", 86400)) * time.Second
	sweep := time.Duration(getInt("OVERDUE_SWEEP_MINUTES", 60)) * time.Minute

	return Config{
		RedisAddr:     get("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPwd:      os.Getenv("REDIS_PASSWORD"),
		WebOrigin:     get("WEB_ORIGIN", "http://localhost:3000"),
		SessionTTL:    ttl,
		SweepInterval: sweep,
		RateLimit:     getInt("RATE_LIMIT_REQUESTS", 60),
		RateWindow:    time.Duration(getInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		BootstrapUsername: strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_USERNAME")),
		BootstrapPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}
}
