package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/angelmondragon/voucherredeem-backend/internal/redemption"
	"github.com/angelmondragon/voucherredeem-backend/pkg/config"
	"github.com/angelmondragon/voucherredeem-backend/pkg/db"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
	"github.com/angelmondragon/voucherredeem-backend/pkg/marketplace"
	"github.com/angelmondragon/voucherredeem-backend/pkg/numberprovider"
	"github.com/joho/godotenv"
)

// otp-poll asks the number provider for the passcode on a redemption's current lease.
// It is a support tool; redemptions only complete through the OTP webhook.
func main() {
	logg := logger.New(logger.Options{ServiceName: "otp-poll"})
	_ = godotenv.Load()

	id := flag.Int64("id", 0, "redemption id to poll")
	timeout := flag.Duration("timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	if *id <= 0 {
		fmt.Fprintln(os.Stderr, "missing -id")
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "otp-poll",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logg.WithRedemptionID(ctx, *id)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	provider, err := numberprovider.NewClient(cfg.Provider, numberprovider.WithLogger(logg))
	requireResource(ctx, logg, "number provider", err)

	orders, err := marketplace.NewClient(cfg.Marketplace)
	requireResource(ctx, logg, "marketplace", err)

	svc, err := redemption.NewService(redemption.ServiceParams{
		Repo:     redemption.NewRepository(dbClient.DB()),
		Provider: provider,
		Orders:   orders,
		Policy:   redemption.DefaultPolicy(),
		Logger:   logg,
	})
	requireResource(ctx, logg, "redemption service", err)

	code, err := svc.PollOTP(ctx, *id)
	if err != nil {
		logg.Error(ctx, "poll failed", err)
		os.Exit(1)
	}
	if code == nil {
		fmt.Println("no otp yet")
		return
	}
	fmt.Println(*code)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
