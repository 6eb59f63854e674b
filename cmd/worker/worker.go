package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/mindfeed/internal/broker"
	"example.com/mindfeed/internal/logger"
	"example.com/mindfeed/internal/models"
	"example.com/mindfeed/internal/store"
	"github.com/segmentio/kafka-go"
)

const fanoutLimit = 20

var logg = logger.New()

// Worker consumes post events: new posts and retweets are delivered to the
// author's and followers' feeds, deleted posts are retracted from them.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts message reading and concurrent processing.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan kafka.Message, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}(i)
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			if !w.enqueue(ctx, jobs, msg) {
				return
			}
		}
	}
}

// enqueue blocks until msg is queued or ctx ends, logging while the queue is full.
func (w *Worker) enqueue(ctx context.Context, jobs chan<- kafka.Message, msg kafka.Message) bool {
	for {
		select {
		case jobs <- msg:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
			logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
		}
	}
}

// processLoop decodes queued events and fans them out.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan kafka.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-jobs:
			if !ok {
				return
			}

			event, post, err := appkafka.DecodePost(msg)
			if err != nil {
				logg.Error("worker", "Skipping undecodable Kafka message", err)
				continue
			}

			apply := w.Deliver
			if event == models.EventPostDeleted {
				apply = w.Retract
			}
			if err := apply(ctx, post); err != nil {
				logg.Error("worker", "Failed to apply "+event, err)
				continue
			}
			logg.Info("worker", event+" applied to follower feeds (post ID anonymized)")
		}
	}
}

// Deliver writes post into the author's feed and, with bounded concurrency,
// into every follower's feed. Individual feed write failures are logged.
func (w *Worker) Deliver(ctx context.Context, post models.Post) error {
	return w.fanOut(ctx, post, "add post to", w.store.AddToFeed)
}

// Retract removes a deleted post from the same feeds Deliver writes.
func (w *Worker) Retract(ctx context.Context, post models.Post) error {
	return w.fanOut(ctx, post, "remove post from", w.store.RemoveFromFeed)
}

func (w *Worker) fanOut(ctx context.Context, post models.Post, what string, apply func(string, models.Post) error) error {
	followers, err := w.store.GetFollowers(post.AuthorID)
	if err != nil {
		return fmt.Errorf("fetching followers: %w", err)
	}

	if err := apply(post.AuthorID, post); err != nil {
		logg.Error("worker", "Failed to "+what+" author feed", err)
	}

	var fanoutWG sync.WaitGroup
	semaphore := make(chan struct{}, fanoutLimit)

	for _, uid := range followers {
		if uid == post.AuthorID {
			continue
		}
		if err := ctx.Err(); err != nil {
			fanoutWG.Wait()
			return err
		}
		select {
		case <-ctx.Done():
			fanoutWG.Wait()
			return ctx.Err()
		case semaphore <- struct{}{}:
		}

		fanoutWG.Add(1)
		go func(u string) {
			defer fanoutWG.Done()
			defer func() { <-semaphore }()
			if err := apply(u, post); err != nil {
				logg.Error("worker", "Failed to "+what+" user feed", err)
			}
		}(uid)
	}

	fanoutWG.Wait()
	return nil
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

// Close shuts down Kafka reader and Cassandra session.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing Cassandra session")
	w.store.Close()
	return nil
}
