package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"fitpass/internal/billing"
	"fitpass/internal/config"
	"fitpass/internal/db"
	"fitpass/internal/gym"
	"fitpass/internal/logger"
	"fitpass/internal/membership"
	"fitpass/internal/payout"
	"fitpass/internal/report"
	"fitpass/internal/visit"
)

// One-shot payout run for a billing period. Meant to be driven by cron at the
// start of each month; safe to re-run, completed transfers are skipped.
func main() {
	periodFlag := flag.String("period", "", "billing period to process (YYYY-MM), defaults to the previous month")
	flag.Parse()

	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	period := payout.PreviousPeriod(time.Now())
	if *periodFlag != "" {
		period, err = payout.ParsePeriod(*periodFlag)
		if err != nil {
			logger.Fatalf("Invalid period %q: %v", *periodFlag, err)
		}
	}

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	stripeClient := billing.NewClient(cfg.StripeSecretKey)

	aggregator := payout.NewAggregator(
		cfg.PayoutConfig(),
		membership.NewRepository(database),
		visit.NewRepository(database),
		gym.NewRepository(database),
		stripeClient,
		payout.NewRepository(database),
		payout.NewRunLock(rdb, 30*time.Minute),
	)

	ctx := context.Background()

	logger.Infof("Running payouts for period %s", period)
	result, err := aggregator.Run(ctx, period)
	if err != nil {
		logger.Errorf("Payout run for %s failed: %v", period, err)
		os.Exit(1)
	}

	reportService := report.New(
		cfg.OpsEmail,
		cfg.EmailFrom,
		cfg.EmailFromName,
		cfg.SMTPHost,
		cfg.SMTPPort,
		cfg.SMTPUser,
		cfg.SMTPPass,
		cfg.RedisAddr,
	)
	defer reportService.Close()

	if err := reportService.Enqueue(ctx, *result); err != nil {
		logger.Errorf("Failed to queue payout report: %v", err)
	}

	logger.Info("Payout run finished",
		"period", period.String(),
		"memberships", result.Memberships,
		"completed", result.TransfersCompleted,
		"failed", result.TransfersFailed,
		"deferred", result.TransfersDeferred,
		"total_paid_cents", result.TotalPaidCents,
	)

	if result.TransfersFailed > 0 {
		os.Exit(1)
	}
}
