package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-inventory/internal/config"
	"github.com/smarttransit/seat-inventory/internal/database"
	"github.com/smarttransit/seat-inventory/internal/services"
)

// Exit codes: 0 consistent, 1 failure, 2 mismatches found.
func main() {
	var (
		dbURLFlag string
		driver    string
		asJSON    bool
		timeout   time.Duration
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&driver, "driver", "postgres", "database driver: postgres or pgx")
	flag.BoolVar(&asJSON, "json", false, "print the report as JSON")
	flag.DurationVar(&timeout, "timeout", time.Minute, "audit timeout")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		Driver:             driver,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	audit := services.NewInventoryAuditService(database.NewScheduleCapacityRepository(db.DB), logger)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report, err := audit.Run(ctx)
	if err != nil {
		log.Fatalf("inventory audit failed: %v", err)
	}

	if asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("failed to encode report: %v", err)
		}
		fmt.Println(string(out))
	} else {
		fmt.Printf("Checked %d schedules at %s\n", report.Schedules, report.CheckedAt.Format(time.RFC3339))
		for _, m := range report.Mismatches {
			fmt.Printf("  MISMATCH %s: total=%d available=%d booked_rows=%d duplicate_seats=%d\n",
				m.ScheduleID, m.TotalSeats, m.AvailableSeats, m.BookedLedgerRows, m.DuplicateSeats)
		}
		if len(report.Mismatches) == 0 {
			fmt.Println("Inventory is consistent.")
		}
	}

	if len(report.Mismatches) > 0 {
		db.Close()
		os.Exit(2)
	}
}
