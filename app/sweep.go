package app

import (
	"context"
	"log"
	"time"

	"device_loan_service/db"
)

// StartOverdueSweeper promotes expired ACTIVE loans to OVERDUE on an interval
// until ctx is cancelled. One run at startup so a restarted service catches up
// immediately.
func StartOverdueSweeper(ctx context.Context, repo *db.Repo, interval time.Duration) {
	go func() {
		sweep := func() {
			n, err := repo.MarkOverdue(ctx, time.Now())
			if err != nil {
				log.Printf("overdue sweep failed: %v", err)
				return
			}
			if n > 0 {
				log.Printf("overdue sweep: %d loan(s) marked", n)
			}
		}
		sweep()

		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweep()
			}
		}
	}()
}
