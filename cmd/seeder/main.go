package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/config"
	"github.com/rayyanshah04/FlexPay/internal/domain"
	"github.com/rayyanshah04/FlexPay/internal/logging"
)

const (
	DefaultAccounts = 1000
	InitialBalance  = domain.Amount(10000) // Rs. 100.00
)

var seedCoupons = []domain.Coupon{
	{Code: "WELCOME100", Amount: 10000},
	{Code: "EID500", Amount: 50000},
	{Code: "BENCH1", Amount: 100},
}

func main() {
	total := flag.Int("accounts", DefaultAccounts, "Number of accounts to seed")
	flag.Parse()

	cfg, err := config.Load(".")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	log := logging.SetupLogging(cfg.LogLevel)

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DBSource)
	if err != nil {
		log.WithError(err).Fatal("Unable to connect to database")
	}
	defer conn.Close(ctx)

	log.Info("Seeding database")

	var count int
	if err := conn.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		log.WithError(err).Fatal("Failed to count accounts; has the schema been migrated?")
	}
	if count >= *total {
		log.WithField("accounts", count).Info("Accounts already seeded; skipping")
	} else {
		seeded, err := seedAccounts(ctx, conn, count, *total)
		if err != nil {
			log.WithError(err).Fatal("Bulk insert of accounts failed")
		}
		log.WithField("accounts", seeded).Info("Seeded accounts")
	}

	seeded, err := seedCouponRows(ctx, conn)
	if err != nil {
		log.WithError(err).Fatal("Failed to seed coupons")
	}
	log.WithField("coupons", seeded).Info("Seeded coupons")
}

// seedAccounts tops the table up to total rows with CopyFrom. Phone numbers are
// derived from the row index so repeated runs never collide.
func seedAccounts(ctx context.Context, conn *pgx.Conn, existing, total int) (int64, error) {
	now := time.Now()
	rows := make([][]interface{}, 0, total-existing)
	for i := existing; i < total; i++ {
		rows = append(rows, []interface{}{
			fmt.Sprintf("Bench User %04d", i+1),
			fmt.Sprintf("0399%07d", i+1),
			int64(InitialBalance),
			now,
		})
	}

	return conn.CopyFrom(
		ctx,
		pgx.Identifier{"accounts"},
		[]string{"name", "phone_number", "balance", "created_at"},
		pgx.CopyFromRows(rows),
	)
}

func seedCouponRows(ctx context.Context, conn *pgx.Conn) (int64, error) {
	batch := &pgx.Batch{}
	for _, c := range seedCoupons {
		batch.Queue(`INSERT INTO coupons (code, amount) VALUES ($1, $2) ON CONFLICT (code) DO NOTHING`, c.Code, int64(c.Amount))
	}

	results := conn.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range seedCoupons {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}
