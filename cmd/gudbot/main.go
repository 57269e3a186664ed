package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gudTECH/nag-bot/internal/bot"
	"github.com/gudTECH/nag-bot/internal/chat"
	"github.com/gudTECH/nag-bot/internal/config"
	"github.com/gudTECH/nag-bot/internal/reconcile"
	"github.com/gudTECH/nag-bot/internal/store"
	"github.com/gudTECH/nag-bot/internal/tracker"
)

func main() {
	logger := log.New(os.Stdout, "gudbot ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)

	if err := godotenv.Load(); err != nil {
		logger.Printf("no .env file found, using environment variables")
	}

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	st, err := store.NewGormStore(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.TeamFile != "" {
		if err := seedTeam(ctx, logger, st, cfg.TeamFile); err != nil {
			logger.Fatalf("failed to seed team: %v", err)
		}
	}

	jira := tracker.NewJira(cfg.JiraBaseURL, cfg.JiraUsername, cfg.JiraAPIToken, nil)
	discord := chat.NewDiscord(logger)
	if err := discord.Open(cfg.DiscordBotToken); err != nil {
		logger.Fatalf("failed to open discord client: %v", err)
	}

	deps := bot.Deps{
		Store:            st,
		Tracker:          jira,
		Chat:             discord,
		Logger:           logger,
		Project:          cfg.JiraProject,
		HaltTransition:   cfg.HaltTransition,
		ResumeTransition: cfg.ResumeTransition,
		SessionTimeout:   cfg.SessionTimeout,
	}
	manager := bot.NewManager(deps, bot.NewRegistry())

	reconciler := reconcile.New(st, jira, manager, logger, cfg.JiraProject, cfg.Location(), cfg.ReconcileInterval)
	if err := reconciler.Start(ctx); err != nil {
		_ = discord.Close()
		logger.Fatalf("failed to start reconciler: %v", err)
	}

	logger.Printf("gudbot started project=%s interval=%s", cfg.JiraProject, cfg.ReconcileInterval)
	manager.Run(ctx, discord.Events())

	reconciler.Stop()
	if err := discord.Close(); err != nil {
		logger.Printf("shutdown error: %v", err)
	}
	logger.Printf("gudbot stopped")
}

// seedTeam pre-registers roster members that are not in the store yet.
func seedTeam(ctx context.Context, logger *log.Logger, st store.Store, path string) error {
	members, err := config.LoadTeamFile(path)
	if err != nil {
		return err
	}
	known, err := st.ListUsers(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(known))
	for _, u := range known {
		present[u.Username] = true
	}

	seeded := 0
	for _, m := range members {
		if present[m.ID] {
			continue
		}
		user, err := st.GetOrCreateUser(ctx, m.ID)
		if err != nil {
			return err
		}
		user.Active = m.Active
		user.WorkStart = m.WorkStart
		user.WorkEnd = m.WorkEnd
		user.LunchStart = m.LunchStart
		user.LunchEnd = m.LunchEnd
		if err := st.SaveUser(ctx, user); err != nil {
			return err
		}
		seeded++
	}
	if seeded > 0 {
		logger.Printf("seeded %d team member(s) from %s", seeded, path)
	}
	return nil
}
