package querydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SeedOptions controls the generated demo portfolio.
type SeedOptions struct {
	// Transactions is the number of random trades to generate. Default 50.
	Transactions int
	// Seed makes the generated data reproducible. Zero uses the clock.
	Seed int64
	// Year is the calendar year trades fall in. Default 2024.
	Year int
}

type instrument struct {
	ticker, name, sector string
}

type priceRange struct{ low, high float64 }

var sectorPrices = map[string]priceRange{
	"Technology": {80, 600},
	"Financials": {40, 300},
	"Energy":     {30, 250},
	"Healthcare": {50, 500},
	"Consumer":   {20, 400},
	"Space":      {5, 80},
}

// Seed inserts the instrument catalog and a batch of random trades, keeping
// holdings at weighted average cost. Existing instruments are left alone;
// trades are always added.
func (d *DB) Seed(ctx context.Context, opts SeedOptions) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if opts.Transactions <= 0 {
		opts.Transactions = 50
	}
	if opts.Year == 0 {
		opts.Year = 2024
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, inst := range catalog {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO instruments (ticker, name, sector, asset_class) VALUES (?, ?, ?, 'Equity')",
			inst.ticker, inst.name, inst.sector); err != nil {
			return fmt.Errorf("insert instrument %s: %w", inst.ticker, err)
		}
	}

	start := time.Date(opts.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := time.Date(opts.Year, time.December, 31, 0, 0, 0, 0, time.UTC).Sub(start).Hours() / 24

	for i := 0; i < opts.Transactions; i++ {
		inst := catalog[rng.Intn(len(catalog))]
		prices := sectorPrices[inst.sector]
		side := "BUY"
		if rng.Intn(100) >= 70 {
			side = "SELL"
		}
		qty := float64(rng.Intn(50) + 1)
		price := round2(prices.low + rng.Float64()*(prices.high-prices.low))
		date := start.AddDate(0, 0, rng.Intn(int(days)+1)).Format("2006-01-02")

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO transactions (ticker, side, qty, price, date, asset_class) VALUES (?, ?, ?, ?, ?, 'Equity')",
			inst.ticker, side, qty, price, date); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		if err := applyTrade(ctx, tx, inst.ticker, side, qty, price); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// applyTrade folds one trade into holdings. Buys move the average cost;
// sells only reduce quantity, and a position sold through zero resets.
func applyTrade(ctx context.Context, tx *sql.Tx, ticker, side string, qty, price float64) error {
	var curQty, curAvg float64
	err := tx.QueryRowContext(ctx, "SELECT qty, avg_cost FROM holdings WHERE ticker = ?", ticker).Scan(&curQty, &curAvg)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read holding %s: %w", ticker, err)
	}

	var newQty, newAvg float64
	switch side {
	case "BUY":
		newQty = curQty + qty
		newAvg = round2((curQty*curAvg + qty*price) / newQty)
	default:
		newQty = curQty - qty
		newAvg = curAvg
		if newQty <= 0 {
			newQty, newAvg = 0, 0
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO holdings (ticker, qty, avg_cost) VALUES (?, ?, ?)
		 ON CONFLICT(ticker) DO UPDATE SET qty = excluded.qty, avg_cost = excluded.avg_cost`,
		ticker, newQty, newAvg)
	if err != nil {
		return fmt.Errorf("write holding %s: %w", ticker, err)
	}
	return nil
}

// Reset empties every portfolio table.
func (d *DB) Reset(ctx context.Context) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, table := range []string{"holdings", "transactions", "instruments"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
