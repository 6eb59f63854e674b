package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"example.com/mindfeed/bench/stats"
	"example.com/mindfeed/internal/client"
	"example.com/mindfeed/internal/models"
)

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var insecure bool

	flag.StringVar(&server, "server", "https://localhost:8080", "backend API base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS verification")
	flag.Parse()

	ctx := context.Background()
	httpClient := &http.Client{
		Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}},
	}

	// --- Register one user per goroutine ---
	fmt.Printf("Registering %d users...\n", concurrency)
	clients := make([]*client.Client, concurrency)
	for i := range clients {
		c := client.New(server, client.Options{HTTPClient: httpClient, Timeout: 10 * time.Second})
		name := fmt.Sprintf("load_%d_%d", i, time.Now().UnixNano()%1e9)
		if _, err := c.Register(ctx, client.RegisterInput{
			Username:  name,
			Email:     name + "@load.local",
			Password1: "load-password",
			Password2: "load-password",
		}); err != nil {
			fmt.Printf("failed to register user: %v\n", err)
			os.Exit(1)
		}
		clients[i] = c
	}
	fmt.Println("Users registered.")

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var requests, successes, errors4xx, errors5xx, netErrors atomic.Int64

	latencySlices := make([][]float64, concurrency) // each goroutine records latencies

	// --- Start concurrent goroutines for load test ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			c := clients[idx]
			var localLatencies []float64

			// Keep publishing posts until the test duration ends
			for time.Now().Before(stopTime) {
				start := time.Now()
				_, err := c.CreatePost(ctx, fmt.Sprintf("load test post %d", time.Now().UnixNano()), "")
				localLatencies = append(localLatencies, time.Since(start).Seconds()*1000)
				requests.Add(1)

				var upErr *models.UpstreamError
				switch {
				case err == nil:
					successes.Add(1)
				case errors.As(err, &upErr) && upErr.Status < 500:
					errors4xx.Add(1)
					fmt.Printf("Status %d: %s\n", upErr.Status, upErr.Message)
				case errors.As(err, &upErr):
					errors5xx.Add(1)
					fmt.Printf("Status %d: %s\n", upErr.Status, upErr.Message)
				default:
					netErrors.Add(1)
					fmt.Printf("Request error: %v\n", err)
				}
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	// --- Merge all latencies ---
	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d  network: %d\n",
		requests.Load(), successes.Load(), errors4xx.Load(), errors5xx.Load(), netErrors.Load())
	fmt.Printf("Latency (ms): %s\n", stats.Summarize(allLatencies, trimPercent))

	// --- Save latencies to CSV ---
	if err := stats.WriteCSV(csvFile, allLatencies); err != nil {
		fmt.Printf("Failed to write CSV file: %v\n", err)
		return
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}
