package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wardenlabs/feishu-warden/feishu"
	"github.com/wardenlabs/feishu-warden/internal/api"
	"github.com/wardenlabs/feishu-warden/internal/biz/usecase"
	"github.com/wardenlabs/feishu-warden/internal/conf"
	"github.com/wardenlabs/feishu-warden/internal/data"
	"github.com/wardenlabs/feishu-warden/internal/server"
	"github.com/wardenlabs/feishu-warden/internal/service"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	global := cfg.Policy.ToEffectiveConfig()

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret)

	// Initialize repository layer
	repos, err := data.NewRepositories(feishuClient, cfg.Store.DBPath, cfg.Store.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}
	fmt.Printf("[Warden] Store: %s\n", cfg.Store.DBPath)

	// Seed system presets from the policy file
	if presets := cfg.Policy.SystemPresets(); len(presets) > 0 {
		if err := repos.Preset.EnsureSystem(context.Background(), presets); err != nil {
			log.Fatalf("Failed to seed system presets: %v", err)
		}
		fmt.Printf("[Warden] %d system presets available\n", len(presets))
	}

	// Initialize usecase layer
	resolverUC := usecase.NewResolverUsecase(repos.Override, repos.Preset, cfg.Policy.ToResolverConfig())
	detectUC := usecase.NewDetectUsecase(resolverUC)
	ledgerUC := usecase.NewLedgerUsecase(repos.Violation)

	// Warm the ledger cache
	if loaded, err := ledgerUC.Resync(context.Background()); err != nil {
		fmt.Printf("[Warden] Ledger resync failed: %v\n", err)
	} else {
		fmt.Printf("[Warden] Ledger loaded: %d records\n", loaded)
	}

	// Initialize service layer
	modSvc := service.NewModerationService(detectUC, ledgerUC, repos.Mute, repos.Executor, global)
	if cfg.Feishu.BotOpenID != "" {
		modSvc.SetBotID(cfg.Feishu.BotOpenID)
	}
	janitor := service.NewJanitor(repos.Mute, ledgerUC, global.ResetWindow())

	// Start the admin API server (loopback only, consumed by warden-mcp)
	apiServer := api.NewServer(ledgerUC, repos.Override, repos.Preset, repos.Mute, repos.Chat, global, cfg.API.Port)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("[Warden] API server error: %v\n", err)
		}
	}()

	// Initialize server
	srv := server.NewFeishuServer(feishuClient, repos.Chat, modSvc, janitor)

	// 优雅退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		srv.Stop()
		apiServer.Stop()
		repos.Close()
		os.Exit(0)
	}()

	fmt.Println("Starting Feishu Warden...")
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
