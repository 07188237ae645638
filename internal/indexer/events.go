package indexer

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/scriptura/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/scriptura/pkg/kafka"
)

// HandleWorkIngested returns a Kafka handler that wakes w early. The catalog
// stays the source of truth; the message only shortens the wait.
func HandleWorkIngested(w *Worker) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.WorkIngestedEvent](value)
		if err != nil {
			return err
		}
		w.logger.Debug("work ingested, nudging worker", "work_id", event.WorkID)
		w.Nudge()
		return nil
	}
}
