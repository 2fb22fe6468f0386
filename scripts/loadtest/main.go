// Loadtest drives concurrent traffic through the gateway and reports how
// the policies answered: which target served each request, cache hits,
// rate-limit denials and breaker rejections.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:8080/api/items/1 -concurrency 20 -requests 2000
//	go run ./scripts/loadtest -url http://localhost:8080/api/items -method POST -clients 50 -out summary.json
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sort"
	"sync"
	"time"
)

type bucket struct {
	Count     int             `json:"count"`
	Latencies []time.Duration `json:"-"`
}

func (b *bucket) add(d time.Duration) {
	b.Count++
	b.Latencies = append(b.Latencies, d)
}

type report struct {
	mutex sync.Mutex

	Target      string             `json:"target"`
	Requests    int                `json:"requests"`
	Concurrency int                `json:"concurrency"`
	Errors      int                `json:"transport_errors"`
	Duration    time.Duration      `json:"duration"`
	Status      map[int]*bucket    `json:"status"`
	Targets     map[string]*bucket `json:"targets"`
	Cache       map[string]*bucket `json:"cache"`
	all         []time.Duration
}

func newReport(target string, requests, concurrency int) *report {
	return &report{
		Target:      target,
		Requests:    requests,
		Concurrency: concurrency,
		Status:      make(map[int]*bucket),
		Targets:     make(map[string]*bucket),
		Cache:       make(map[string]*bucket),
	}
}

func tally[K comparable](m map[K]*bucket, k K, d time.Duration) {
	b, ok := m[k]
	if !ok {
		b = &bucket{}
		m[k] = b
	}
	b.add(d)
}

func (r *report) record(resp *http.Response, d time.Duration, err error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.all = append(r.all, d)
	if err != nil {
		r.Errors++
		return
	}

	tally(r.Status, resp.StatusCode, d)
	if backend := resp.Header.Get("X-Backend-Server"); backend != "" {
		tally(r.Targets, backend, d)
	}
	if status := resp.Header.Get("X-Cache"); status != "" {
		tally(r.Cache, status, d)
	}
}

func percentiles(ds []time.Duration) string {
	if len(ds) == 0 {
		return "no samples"
	}
	sorted := slices.Clone(ds)
	slices.Sort(sorted)
	p := func(pct float64) time.Duration { return sorted[int(float64(len(sorted)-1)*pct)] }
	return fmt.Sprintf("samples=%d min=%v p50=%v p90=%v p99=%v max=%v",
		len(sorted), sorted[0], p(0.50), p(0.90), p(0.99), sorted[len(sorted)-1])
}

func (r *report) print() {
	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", r.Target)
	fmt.Printf("Requests: %d  Concurrency: %d  Transport errors: %d\n", r.Requests, r.Concurrency, r.Errors)
	fmt.Printf("Duration: %v  Throughput: %.2f req/s\n", r.Duration, float64(r.Requests)/r.Duration.Seconds())

	fmt.Println("\nStatus codes:")
	codes := make([]int, 0, len(r.Status))
	for c := range r.Status {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		fmt.Printf("  %d -> %d (%s)\n", c, r.Status[c].Count, http.StatusText(c))
	}

	for _, section := range []struct {
		title string
		m     map[string]*bucket
	}{
		{"Target distribution", r.Targets},
		{"Cache", r.Cache},
	} {
		if len(section.m) == 0 {
			continue
		}
		fmt.Printf("\n%s:\n", section.title)
		keys := make([]string, 0, len(section.m))
		for k := range section.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b := section.m[k]
			fmt.Printf("  %s -> %d\n    %s\n", k, b.Count, percentiles(b.Latencies))
		}
	}

	fmt.Printf("\nOverall latencies:\n  %s\n", percentiles(r.all))
}

func main() {
	var (
		target      = flag.String("url", "http://localhost:8080/api/items/1", "Gateway URL")
		method      = flag.String("method", http.MethodGet, "HTTP method")
		body        = flag.String("body", "", "Request body")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		clients     = flag.Int("clients", 1, "Distinct client addresses spread over X-Forwarded-For")
		timeout     = flag.Duration("timeout", 10*time.Second, "Per-request timeout")
		out         = flag.String("out", "", "Write JSON summary to this file (optional)")
	)
	flag.Parse()

	client := &http.Client{Timeout: *timeout}
	rep := newReport(*target, *requests, *concurrency)

	jobs := make(chan int)
	var wg sync.WaitGroup
	start := time.Now()

	for range *concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				req, err := http.NewRequest(*method, *target, bytes.NewBufferString(*body))
				if err != nil {
					rep.record(nil, 0, err)
					continue
				}
				if *clients > 1 {
					req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.%d.%d", (idx%*clients)/250, (idx%*clients)%250+1))
				}

				began := time.Now()
				resp, err := client.Do(req)
				rep.record(resp, time.Since(began), err)
				if err == nil {
					_, _ = io.Copy(io.Discard, resp.Body)
					resp.Body.Close()
				}
			}
		}()
	}

	for i := range *requests {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	rep.Duration = time.Since(start)

	rep.print()

	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write json: %v\n", err)
		}
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *out)
	}

	if rep.Errors > 0 {
		os.Exit(2)
	}
}
