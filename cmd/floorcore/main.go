package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"floorcore/config"
	"floorcore/engine"
	"floorcore/erp"
	"floorcore/execution"
	"floorcore/messaging"
	"floorcore/statecache"
	"floorcore/store"
	"floorcore/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "floorcore.yaml", "path to config file")
	createAdmin := flag.String("create-admin", "", "create an admin user (username:password) and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("floorcore", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("floorcore: database open (%s)", cfg.Database.Driver)

	if *createAdmin != "" {
		username, password, err := adminCredentials(*createAdmin)
		if err != nil {
			log.Fatalf("create-admin: %v", err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("create-admin: %v", err)
		}
		if err := db.CreateAdminUser(username, string(hash)); err != nil {
			log.Fatalf("create-admin: %v", err)
		}
		log.Printf("floorcore: admin user %q created", username)
		return
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	redisOK := redisClient.Ping(ctx).Err() == nil
	cancel()
	if redisOK {
		log.Printf("floorcore: redis connected (%s)", cfg.Redis.Address)
	} else {
		log.Printf("floorcore: redis not available, running without cache")
	}
	defer redisClient.Close()

	// Idempotency guard
	var guardRedis *redis.Client
	if redisOK {
		guardRedis = redisClient
	}
	guard := execution.NewGuard(cfg.Execution.DedupBucket, cfg.Execution.DedupTTL, guardRedis)

	// Live workcenter state cache
	redisStore := statecache.NewRedisStore(redisClient)
	stateMgr := statecache.NewManager(db, redisStore)
	if redisOK {
		stateMgr.SyncRedisFromSQL()
	}

	// ERP client
	erpClient := erp.NewClient(cfg.ERP.BaseURL, cfg.ERP.Timeout)
	if err := erpClient.Ping(); err == nil {
		log.Printf("floorcore: ERP connected (%s)", cfg.ERP.BaseURL)
	} else {
		log.Printf("floorcore: ERP not available (%v)", err)
	}

	// Messaging client
	msgClient, err := messaging.NewClient(&cfg.Messaging)
	if err != nil {
		log.Fatalf("messaging: %v", err)
	}
	defer msgClient.Close()

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Guard:      guard,
		StateCache: stateMgr,
		ERPClient:  erpClient,
		MsgClient:  msgClient,
	})
	eng.Start()
	defer eng.Stop()

	// Telemetry consumer (inbound from equipment bridges)
	consumer := messaging.NewTelemetryConsumer(msgClient, eng, cfg.Messaging.TelemetryTopic)
	if err := consumer.Start(); err != nil {
		log.Printf("floorcore: telemetry consumer start failed: %v", err)
	}

	// Outbox drainer (outbound fan-out)
	drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
	drainer.Start()
	defer drainer.Stop()

	// Web server
	handler, stopWeb := www.NewRouter(eng)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("floorcore: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("floorcore: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("floorcore: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("floorcore: stopped")
}

// adminCredentials splits the -create-admin argument.
func adminCredentials(arg string) (username, password string, err error) {
	username, password, ok := strings.Cut(arg, ":")
	if !ok || username == "" || password == "" {
		return "", "", fmt.Errorf("expected username:password, got %q", arg)
	}
	return username, password, nil
}
