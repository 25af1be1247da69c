// Command credits is an operator tool for inspecting and topping up a user's
// prepaid balance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	var (
		userFlag   string
		grantFlag  int
		createFlag bool
	)

	flag.StringVar(&userFlag, "user", "", "user ID to inspect or credit")
	flag.IntVar(&grantFlag, "grant", 0, "credits to add (0 only prints the balance)")
	flag.BoolVar(&createFlag, "create", false, "create the balance row if it does not exist")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if grantFlag < 0 {
		exitWithError(errors.New("-grant must not be negative"))
	}

	_ = godotenv.Load()
	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("connect database: %w", err))
	}
	defer pool.Close()

	if createFlag {
		_, err := pool.Exec(ctx, `
INSERT INTO credit_balances (user_id, balance, version)
VALUES ($1, 0, 0)
ON CONFLICT (user_id) DO NOTHING;
`, userID)
		if err != nil {
			exitWithError(fmt.Errorf("create balance row: %w", err))
		}
	}

	if grantFlag > 0 {
		tag, err := pool.Exec(ctx, `
UPDATE credit_balances
SET balance = balance + $2,
    version = version + 1,
    updated_at = NOW()
WHERE user_id = $1;
`, userID, grantFlag)
		if err != nil {
			exitWithError(fmt.Errorf("grant credits: %w", err))
		}
		if tag.RowsAffected() == 0 {
			exitWithError(fmt.Errorf("no balance row for user %s (use -create)", userID))
		}
	}

	var balance int
	var version int64
	err = pool.QueryRow(ctx, `
SELECT balance, version FROM credit_balances WHERE user_id = $1;
`, userID).Scan(&balance, &version)
	if err != nil {
		exitWithError(fmt.Errorf("read balance: %w", err))
	}
	fmt.Printf("user=%s balance=%d version=%d\n", userID, balance, version)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
