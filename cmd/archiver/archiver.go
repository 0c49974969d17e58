package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"example.com/tinysns/internal/broker"
	"example.com/tinysns/internal/logger"
	"example.com/tinysns/internal/models"
	"example.com/tinysns/internal/store"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// Archiver consumes post events from Kafka and persists authors and posts
// into the durable archive concurrently. The archive is best-effort: a
// failed write is logged and the event dropped, it never blocks the feed.
type Archiver struct {
	archive      store.ArchiveInterface
	reader       broker.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Archiver using pre-initialized dependencies.
func New(archive store.ArchiveInterface, reader broker.KafkaReader, workerCount, jobQueueSize int) *Archiver {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Archiver{
		archive:      archive,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts event reading and concurrent archiving, draining in-flight
// jobs before returning.
func (a *Archiver) Run(ctx context.Context) {
	logg.Info("archiver", "Starting "+fmt.Sprint(a.workerCount)+" workers with queue size "+fmt.Sprint(a.jobQueueSize))

	jobs := make(chan kafka.Message, a.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < a.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.processLoop(jobs)
		}()
	}

	a.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("archiver", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into the job queue.
func (a *Archiver) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := a.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("archiver", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				continue
			}

			select {
			case jobs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processLoop decodes events by message key and writes them to the archive.
// It runs until the jobs channel is closed so queued events survive shutdown.
func (a *Archiver) processLoop(jobs <-chan kafka.Message) {
	for msg := range jobs {
		if string(msg.Key) == broker.KeyUserCreated {
			var user models.User
			if err := json.Unmarshal(msg.Value, &user); err != nil {
				logg.Error("archiver", "Invalid JSON in user event", err)
				continue
			}
			if err := a.archive.SaveUser(user.Username); err != nil {
				logg.Error("archiver", "Failed to archive user", err)
			}
			continue
		}

		var post models.Post
		if err := json.Unmarshal(msg.Value, &post); err != nil {
			logg.Error("archiver", "Invalid JSON in post event", err)
			continue
		}

		if err := a.archive.SaveUser(post.Author); err != nil {
			logg.Error("archiver", "Failed to archive author", err)
			continue
		}
		if err := a.archive.SavePost(post); err != nil {
			logg.Error("archiver", "Failed to archive post", err)
		}
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the archive session.
func (a *Archiver) Close() error {
	logg.Info("archiver", "Closing Kafka reader")
	if err := a.reader.Close(); err != nil {
		logg.Error("archiver", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("archiver", "Closing archive session")
	a.archive.Close()
	return nil
}
