package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/mindfeed/internal/broker"
	config "example.com/mindfeed/internal/init"
	"example.com/mindfeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Publishes synthetic post_created and retweet_created events straight to the
// topic the worker consumes. Brokers and topic come from the usual config.
func main() {
	var total, batchSize, numWorkers int
	var retweetEvery int
	flag.IntVar(&total, "n", 100000, "total number of messages to send")
	flag.IntVar(&batchSize, "batch", 100, "batch size for sending messages")
	flag.IntVar(&numWorkers, "workers", 4, "number of parallel goroutines")
	flag.IntVar(&retweetEvery, "retweet-every", 10, "every n-th event is a retweet of the previous post (0 disables)")
	flag.Parse()

	kcfg := appkafka.ConfigFrom(config.Init())

	// Kafka writer with asynchronous sending enabled
	w := &kafka.Writer{
		Addr:     kafka.TCP(kcfg.Brokers...),
		Topic:    kcfg.Topic,
		Async:    true,
		Balancer: &kafka.Hash{},
	}
	defer w.Close()

	// Generate a unique author ID for this benchmark
	authorID := gocql.TimeUUID().String()
	start := time.Now()

	var successCount, failCount atomic.Uint64

	// Channel for feeding message indexes to worker goroutines
	jobs := make(chan int, total)
	var wg sync.WaitGroup

	flush := func(batch []kafka.Message) {
		if err := w.WriteMessages(context.Background(), batch...); err != nil {
			failCount.Add(uint64(len(batch)))
			fmt.Printf("write error: %v\n", err)
			return
		}
		successCount.Add(uint64(len(batch)))
	}

	// --- Start worker goroutines ---
	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)
			var last string

			for i := range jobs {
				p := models.Post{
					ID:             uuid.NewString(),
					AuthorID:       authorID,
					AuthorUsername: "bench",
					Body:           fmt.Sprintf("kafka bench %d", i),
					Created:        time.Now().UTC(),
				}
				if retweetEvery > 0 && i%retweetEvery == 0 && last != "" {
					p.IsRetweet = true
					p.ParentPost = last
				}
				last = p.ID

				msg, err := appkafka.EncodePost(p)
				if err != nil {
					failCount.Add(1)
					fmt.Printf("encode error: %v\n", err)
					continue
				}
				batch = append(batch, msg)

				// Send batch if batch size reached
				if len(batch) >= batchSize {
					flush(batch)
					batch = batch[:0]
				}
			}

			// Send any remaining messages after finishing loop
			if len(batch) > 0 {
				flush(batch)
			}
		}()
	}

	// Feed jobs channel with indexes
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	// Wait for all worker goroutines to finish
	wg.Wait()

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total messages: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount.Load(), failCount.Load())
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount.Load())/elapsed.Seconds())
}
