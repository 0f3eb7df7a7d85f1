package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/finitixhub/finitix_be/internal/config"
	"github.com/finitixhub/finitix_be/internal/db"
	"github.com/finitixhub/finitix_be/internal/realtime"
	"github.com/finitixhub/finitix_be/internal/scheduler"
	"github.com/finitixhub/finitix_be/internal/server"
	"github.com/finitixhub/finitix_be/internal/services/chatbot"
	"github.com/finitixhub/finitix_be/internal/services/session"
	"github.com/finitixhub/finitix_be/internal/services/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("migrate: ", err)
	}

	rdb := realtime.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis not reachable: ", err)
	}
	log.Println("[Redis] connected")

	bot, err := chatbot.New(cfg.ChatbotRulesPath, cfg.ChatbotDelay)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub()
	feed := realtime.NewFeed(rdb, hub)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return feed.Run(gctx)
	})

	sched := scheduler.New(gdb, feed)
	if err := sched.Start(cfg.JobExpirySpec); err != nil {
		log.Fatal("scheduler: ", err)
	}

	app := server.New(server.Deps{
		Config:    cfg,
		DB:        gdb,
		Redis:     rdb,
		Hub:       hub,
		Feed:      feed,
		Sessions:  session.NewStore(rdb),
		Bucket:    storage.NewLocalBucket(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxUploadBytes),
		Bot:       bot,
		AccessLog: true,
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(shutdownCtx)
		return app.ShutdownWithContext(shutdownCtx)
	})

	g.Go(func() error {
		log.Printf("Starting server at :%s", cfg.AppPort)
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			return err
		}
		// Listen returns nil after shutdown; make sure the other goroutines stop too
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server stopped: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("[Redis] close: %v", err)
	}
	log.Println("bye")
}
