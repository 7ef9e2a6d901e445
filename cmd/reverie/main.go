package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellarlinkco/reverie/internal/chat"
	"github.com/stellarlinkco/reverie/internal/config"
	"github.com/stellarlinkco/reverie/internal/connect"
	"github.com/stellarlinkco/reverie/internal/llm"
	"github.com/stellarlinkco/reverie/internal/memory"
	"github.com/stellarlinkco/reverie/internal/proactive"
)

var rootCmd = &cobra.Command{
	Use:   "reverie",
	Short: "reverie - character chat backend with weighted memory",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the websocket gateway, chat service and proactive scheduler",
	RunE:  runServe,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and database directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reverie status",
	RunE:  runStatus,
}

var engageCmd = &cobra.Command{
	Use:   "engage",
	Short: "Queue a proactive engagement for a user",
	RunE:  runEngage,
}

var (
	engageUser    string
	engageSession string
	engageTrigger string
	engageContent string
	engageDelay   time.Duration
)

func init() {
	engageCmd.Flags().StringVar(&engageUser, "user", "", "Target user id")
	engageCmd.Flags().StringVar(&engageSession, "session", "", "Target session id")
	engageCmd.Flags().StringVar(&engageTrigger, "trigger", "", "Why the character reaches out")
	engageCmd.Flags().StringVar(&engageContent, "content", "", "Precomposed message (optional, generated when empty)")
	engageCmd.Flags().DurationVar(&engageDelay, "in", 0, "How long from now the engagement becomes due")
	rootCmd.AddCommand(serveCmd, onboardCmd, statusCmd, engageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Provider.APIKey == "" {
		return fmt.Errorf("API key not set. Run 'reverie onboard' or set REVERIE_API_KEY / OPENAI_API_KEY")
	}

	engine, err := memory.NewEngine(cfg.Memory.DBPath)
	if err != nil {
		return fmt.Errorf("open memory engine: %w", err)
	}
	defer engine.Close()

	engagements, err := proactive.NewStore(engine.DB())
	if err != nil {
		return fmt.Errorf("open engagement store: %w", err)
	}

	client := llm.NewClient(cfg.Provider)
	classifier := memory.NewIntentClassifier(client, cfg.Memory.ClassifierModel)
	filter := memory.NewRelevanceFilter(client, cfg.Memory.ClassifierModel)
	searcher := memory.NewSearcher(engine, classifier, filter, cfg.Memory.RelevanceLimit)
	scorer := memory.NewScorer(client, cfg.Memory.ClassifierModel)

	registry := connect.NewRegistry()
	service := chat.NewService(engine, scorer, searcher, registry, client, cfg)

	gw := connect.NewGateway(registry, cfg.Gateway.Host, cfg.Gateway.Port)
	gw.OnMessage = func(ctx context.Context, userID, sessionID, content string) {
		if err := service.HandleTurn(ctx, userID, sessionID, content); err != nil {
			log.Printf("[serve] turn for user %s: %v", userID, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	var scheduler *proactive.Scheduler
	if cfg.Proactive.Enabled {
		deliverer := proactive.NewDeliverer(
			registry, engine, client,
			cfg.Provider.Model, cfg.Character.Name, cfg.Provider.MaxTokens,
		)
		scheduler = proactive.NewScheduler(engagements, deliverer, cfg.Proactive.ScanInterval, cfg.Proactive.ScanBatch)
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	log.Printf("[serve] reverie up as %s on %s:%d", cfg.Character.Name, cfg.Gateway.Host, cfg.Gateway.Port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("[serve] shutting down")

	if scheduler != nil {
		scheduler.Stop()
	}
	return gw.Stop()
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, err := memory.NewEngine(cfg.Memory.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer engine.Close()
	if _, err := proactive.NewStore(engine.DB()); err != nil {
		return fmt.Errorf("init engagement store: %w", err)
	}
	fmt.Printf("Database ready: %s\n", cfg.Memory.DBPath)

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key and character\n", cfgPath)
	fmt.Println("  2. Or set REVERIE_API_KEY environment variable")
	fmt.Println("  3. Run 'reverie serve' and connect to /ws?user=<id>&session=<id>")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Character: %s\n", cfg.Character.Name)
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	fmt.Printf("Classifier model: %s\n", cfg.Memory.ClassifierModel)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Printf("Database: %s\n", cfg.Memory.DBPath)
	fmt.Printf("Proactive: enabled=%v interval=%s\n", cfg.Proactive.Enabled, cfg.Proactive.ScanInterval)

	if _, err := os.Stat(cfg.Memory.DBPath); err != nil {
		fmt.Println("Database: not found (run 'reverie onboard')")
	}
	return nil
}

func runEngage(cmd *cobra.Command, args []string) error {
	if engageUser == "" || engageSession == "" {
		return fmt.Errorf("--user and --session are required")
	}
	if engageTrigger == "" && engageContent == "" {
		return fmt.Errorf("one of --trigger or --content is required")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	engine, err := memory.NewEngine(cfg.Memory.DBPath)
	if err != nil {
		return fmt.Errorf("open memory engine: %w", err)
	}
	defer engine.Close()

	store, err := proactive.NewStore(engine.DB())
	if err != nil {
		return fmt.Errorf("open engagement store: %w", err)
	}

	eng, err := store.Create(
		engageUser, engageSession, cfg.Character.Name,
		engageTrigger, engageContent, time.Now().Add(engageDelay),
	)
	if err != nil {
		return err
	}
	fmt.Printf("Queued engagement %s for user %s (due %s)\n", eng.ID, eng.UserID, eng.DueAt.Format(time.RFC3339))
	return nil
}

func maskKey(key string) string {
	if key == "" {
		return "not set"
	}
	if len(key) <= 8 {
		return "set"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
