package tasks

import (
	"context"
	"log"
	"time"

	"chatsphere/internal/storage"

	"github.com/robfig/cron/v3"
)

const retention = 30 * 24 * time.Hour

// MessageJanitor hard-deletes soft-deleted messages past the retention
// window on a nightly schedule.
type MessageJanitor struct {
	store *storage.Postgres
}

func NewMessageJanitor(store *storage.Postgres) *MessageJanitor {
	return &MessageJanitor{store: store}
}

func (j *MessageJanitor) Start() {
	c := cron.New()

	_, err := c.AddFunc("0 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		purged, err := j.store.PurgeDeleted(ctx, retention)
		if err != nil {
			log.Printf("[WORKER] Message purge failed: %v", err)
			return
		}
		if purged > 0 {
			log.Printf("[WORKER] Purged %d deleted messages", purged)
		}
	})
	if err != nil {
		log.Printf("[WORKER] Error scheduling cron: %v", err)
		return
	}

	c.Start()
}
