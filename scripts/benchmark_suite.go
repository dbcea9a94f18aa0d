package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"query-streamer/internal/security"
)

type Config struct {
	TotalRequests int
	Concurrency   int
	Limit         int
	Description   string
}

type Result struct {
	Status    int
	FirstByte time.Duration
	Total     time.Duration
	Bytes     int64
	Error     error
}

type target struct {
	name   string
	method string
	path   func(limit int) string
	body   func(limit int) string
}

var targets = []target{
	{
		name:   "buffered",
		method: http.MethodPost,
		path:   func(int) string { return "/junk" },
		body:   func(limit int) string { return fmt.Sprintf(`{"offset":0,"limit":%d}`, limit) },
	},
	{
		name:   "streamed",
		method: http.MethodGet,
		path:   func(limit int) string { return fmt.Sprintf("/junkstream/%d/0", limit) },
		body:   func(int) string { return "" },
	},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	secret := flag.String("secret", os.Getenv("API_SECRET"), "HMAC secret")
	flag.Parse()

	scenarios := []Config{
		{TotalRequests: 50, Concurrency: 5, Limit: 1000, Description: "Baseline (Low Load)"},
		{TotalRequests: 200, Concurrency: 50, Limit: 1000, Description: "High Concurrency"},
		{TotalRequests: 20, Concurrency: 4, Limit: 10000, Description: "Full table (10k rows)"},
	}

	client := &http.Client{Timeout: 120 * time.Second}
	for _, scenario := range scenarios {
		for _, t := range targets {
			runScenario(client, *baseURL, *secret, scenario, t)
		}
	}
}

func runScenario(client *http.Client, baseURL, secret string, cfg Config, t target) {
	fmt.Printf("\n=======================================================\n")
	fmt.Printf("Scenario: %s [%s]\n", cfg.Description, t.name)
	fmt.Printf("Requests: %d | Concurrency: %d | Limit: %d\n", cfg.TotalRequests, cfg.Concurrency, cfg.Limit)
	fmt.Printf("=======================================================\n")

	results := make(chan Result, cfg.TotalRequests)
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, cfg.Concurrency)

	startTime := time.Now()
	for i := 0; i < cfg.TotalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results <- executeRequest(client, baseURL, secret, cfg, t)
			if id%10 == 0 {
				fmt.Print(".")
			}
		}(i)
	}
	wg.Wait()
	close(results)
	totalTime := time.Since(startTime)
	fmt.Println()

	var firstBytes, totals []time.Duration
	var failures int
	var transferred int64
	for res := range results {
		if res.Error != nil || res.Status != http.StatusOK {
			failures++
			continue
		}
		firstBytes = append(firstBytes, res.FirstByte)
		totals = append(totals, res.Total)
		transferred += res.Bytes
	}

	fmt.Printf("\nRESULTS:\n")
	fmt.Printf("Total Duration: %v\n", totalTime)
	fmt.Printf("Throughput: %.2f req/sec\n", float64(cfg.TotalRequests)/totalTime.Seconds())
	fmt.Printf("Success Rate: %.1f%%\n", float64(cfg.TotalRequests-failures)/float64(cfg.TotalRequests)*100)
	fmt.Printf("Transferred: %.2f MiB\n", float64(transferred)/(1<<20))
	if len(firstBytes) > 0 {
		fmt.Printf("Time to First Byte (P50/P95): %v / %v\n", percentile(firstBytes, 0.50), percentile(firstBytes, 0.95))
		fmt.Printf("Full Response (P50/P95): %v / %v\n", percentile(totals, 0.50), percentile(totals, 0.95))
	}
}

func executeRequest(client *http.Client, baseURL, secret string, cfg Config, t target) Result {
	path := t.path(cfg.Limit)
	body := t.body(cfg.Limit)
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req, err := http.NewRequest(t.method, baseURL+path, bytes.NewBufferString(body))
	if err != nil {
		return Result{Error: err}
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret != "" {
		req.Header.Set("X-Timestamp", timestamp)
		req.Header.Set("X-Signature", security.Sign(secret, t.method, path, body, timestamp))
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return Result{Error: err}
	}
	defer resp.Body.Close()

	buf := make([]byte, 32*1024)
	var firstByte time.Duration
	var n int64
	for {
		k, err := resp.Body.Read(buf)
		if k > 0 && n == 0 {
			firstByte = time.Since(start)
		}
		n += int64(k)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{Status: resp.StatusCode, Error: err}
		}
	}

	return Result{
		Status:    resp.StatusCode,
		FirstByte: firstByte,
		Total:     time.Since(start),
		Bytes:     n,
	}
}

func percentile(d []time.Duration, p float64) time.Duration {
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}
