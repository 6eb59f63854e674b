package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"example.com/mindfeed/bench/stats"
	"example.com/mindfeed/internal/client"
)

type benchUser struct {
	ID     string
	Client *client.Client
}

type postRecord struct {
	PostID   string
	AuthorID string
	Created  time.Time
}

func main() {
	// CLI flags
	var serverAddr, certFile, keyFile string
	var U, F, P, concurrency int
	var pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "https://localhost:8080", "backend API base URL")
	flag.StringVar(&certFile, "cert", "", "client certificate (PEM)")
	flag.StringVar(&keyFile, "key", "", "client key (PEM)")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS verification")
	flag.IntVar(&U, "users", 50, "number of users to create")
	flag.IntVar(&F, "follows", 10, "average follows per user")
	flag.IntVar(&P, "posts", 100, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for post delivery")
	flag.Parse()

	ctx := context.Background()

	// --- TLS setup for secure communication ---
	tlsCfg := &tls.Config{InsecureSkipVerify: insecure}
	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			fail("failed to load cert/key: %v", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	httpClient := &http.Client{Transport: &http.Transport{TLSClientConfig: tlsCfg}}

	newClient := func() *client.Client {
		return client.New(serverAddr, client.Options{HTTPClient: httpClient, Timeout: 10 * time.Second})
	}

	// --- 1) Register users ---
	fmt.Printf("Registering %d users...\n", U)
	users := make([]benchUser, 0, U)
	for i := 0; i < U; i++ {
		c := newClient()
		name := fmt.Sprintf("bench_%d_%d", i, time.Now().UnixNano()%1e9)
		u, err := c.Register(ctx, client.RegisterInput{
			Username:  name,
			Email:     name + "@bench.local",
			Password1: "bench-password",
			Password2: "bench-password",
		})
		if err != nil {
			fail("register error: %v", err)
		}
		users = append(users, benchUser{ID: u.ID, Client: c})
	}
	fmt.Println("Users registered successfully.")

	// --- 2) Create follow relationships between users ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	followMap := make(map[string][]*client.Client)
	for _, u := range users {
		seen := map[string]bool{u.ID: true}
		for j := 0; j < F; j++ {
			followee := users[rand.Intn(len(users))]
			if seen[followee.ID] {
				continue
			}
			seen[followee.ID] = true
			if err := <-u.Client.ToggleFollow(ctx, followee.ID, ""); err != nil {
				fail("follow error: %v", err)
			}
			followMap[followee.ID] = append(followMap[followee.ID], u.Client)
		}
	}
	fmt.Println("Follow relationships established.")

	// --- 3) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter
	postsCh := make(chan postRecord, P)

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			author := users[rand.Intn(len(users))]
			p, err := author.Client.CreatePost(ctx, fmt.Sprintf("post %d", rand.Int()), "")
			if err != nil {
				fmt.Printf("post error: %v\n", err)
				return
			}
			postsCh <- postRecord{PostID: p.ID, AuthorID: p.AuthorID, Created: p.Created}
		}()
	}

	wg.Wait()
	close(postsCh)

	// --- 4) Verify post delivery to followers' feeds and like it ---
	fmt.Println("Checking feed delivery...")
	var (
		latencies, likeLatencies []float64
		latMu                    sync.Mutex
		failCount, likeFails     int64
		checksWg                 sync.WaitGroup
	)

	for pr := range postsCh {
		for _, follower := range followMap[pr.AuthorID] {
			checksWg.Add(1)
			go func(pr postRecord, c *client.Client) {
				defer checksWg.Done()
				deadline := time.Now().Add(time.Duration(pollTimeout) * time.Second)

				// Poll the feed until post appears or timeout
				for time.Now().Before(deadline) {
					posts, err := c.Feed(ctx, 100)
					if err != nil {
						time.Sleep(200 * time.Millisecond)
						continue
					}
					for _, pp := range posts {
						if pp.ID != pr.PostID {
							continue
						}
						lat := time.Since(pr.Created).Seconds() * 1000

						start := time.Now()
						likeErr := <-c.ToggleLike(ctx, pr.PostID)
						likeLat := time.Since(start).Seconds() * 1000

						latMu.Lock()
						latencies = append(latencies, lat)
						if likeErr != nil {
							likeFails++
						} else {
							likeLatencies = append(likeLatencies, likeLat)
						}
						latMu.Unlock()
						return
					}
					time.Sleep(200 * time.Millisecond)
				}

				latMu.Lock()
				failCount++
				latMu.Unlock()
			}(pr, follower)
		}
	}

	checksWg.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
		return
	}
	fmt.Printf("Delivery stats (ms): %s fails=%d\n", stats.Summarize(latencies, 1.0), failCount)
	fmt.Printf("Like round trip (ms): %s fails=%d\n", stats.Summarize(likeLatencies, 1.0), likeFails)

	if err := stats.WriteCSV("e2e_latencies.csv", latencies); err != nil {
		fail("write csv: %v", err)
	}
	fmt.Println("Saved e2e_latencies.csv")
}

func fail(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}
