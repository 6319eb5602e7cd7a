// Benchmark tool for testing Kestrel against labeled contact lists.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/contacts.csv -url http://localhost:8080 -config de-pumps
//
// This tool:
//   1. Reads a contact CSV (email, company, country, optional expected tier)
//   2. Sends each record to Kestrel for scoring
//   3. Compares Kestrel's tier with the expected tier when the CSV carries one
//   4. Reports tier distribution, agreement, latency, and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ContactRow is a row from the input CSV.
type ContactRow struct {
	Email        string
	Company      string
	Country      string
	Description  string
	ExpectedTier string // optional "tier" column
}

// ScoreRequest is the Kestrel API request format.
type ScoreRequest struct {
	Config string      `json:"config"`
	Record ScoreRecord `json:"record"`
}

type ScoreRecord struct {
	Email       string `json:"email"`
	Company     string `json:"company,omitempty"`
	Country     string `json:"country,omitempty"`
	Description string `json:"description,omitempty"`
}

// ScoreResponse is the subset of the Kestrel API response we track.
type ScoreResponse struct {
	Status    string  `json:"status"`
	Tier      string  `json:"tier"`
	Composite float64 `json:"composite"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	TotalInvalid   int64

	Agreements    int64 // scored tier == expected tier
	Disagreements int64
	Unlabeled     int64

	ProcessingTimeMs int64

	mu         sync.Mutex
	tierCounts map[string]int64
}

func (m *Metrics) countTier(tier string) {
	m.mu.Lock()
	m.tierCounts[tier]++
	m.mu.Unlock()
}

func main() {
	csvPath := flag.String("csv", "", "Path to contact CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	configName := flag.String("config", "", "Rule configuration name to score against")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum records to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each record result")
	flag.Parse()

	if *csvPath == "" || *configName == "" {
		fmt.Println("Usage: benchmark -csv /path/to/contacts.csv -config <name> [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           KESTREL BENCHMARK - Contact Record Scoring          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Config:      %s\n", *configName)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	fmt.Printf("\nReading contacts from %s...\n", *csvPath)
	rows, err := readContactCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d records\n", len(rows))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(rows, *baseURL, *tenantID, *configName, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readContactCSV(path string, limit int) ([]ContactRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex["email"]; !ok {
		return nil, fmt.Errorf("CSV needs an email column, got %v", header)
	}

	get := func(record []string, col string) string {
		i, ok := colIndex[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []ContactRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		rows = append(rows, ContactRow{
			Email:        get(record, "email"),
			Company:      get(record, "company"),
			Country:      get(record, "country"),
			Description:  get(record, "description"),
			ExpectedTier: strings.ToUpper(get(record, "tier")),
		})

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

func runBenchmark(rows []ContactRow, baseURL, tenantID, configName string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{tierCounts: make(map[string]int64)}

	work := make(chan ContactRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for row := range work {
				start := time.Now()
				result, err := scoreRecord(client, baseURL, tenantID, configName, row)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", row.Email, err)
					}
					continue
				}

				if result.Status == "INVALID_RECORD" {
					atomic.AddInt64(&metrics.TotalInvalid, 1)
				}
				metrics.countTier(result.Tier)

				switch {
				case row.ExpectedTier == "":
					atomic.AddInt64(&metrics.Unlabeled, 1)
				case row.ExpectedTier == result.Tier:
					atomic.AddInt64(&metrics.Agreements, 1)
				default:
					atomic.AddInt64(&metrics.Disagreements, 1)
				}

				if verbose {
					status := "✓"
					if row.ExpectedTier != "" && row.ExpectedTier != result.Tier {
						status = "✗"
					}
					email := row.Email
					if len(email) > 30 {
						email = email[:30]
					}
					fmt.Printf("%s %-30s | Tier: %-8s | Score: %6.2f | Expected: %s\n",
						status, email, result.Tier, result.Composite, row.ExpectedTier)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreRecord(client *http.Client, baseURL, tenantID, configName string, row ContactRow) (*ScoreResponse, error) {
	req := ScoreRequest{
		Config: configName,
		Record: ScoreRecord{
			Email:       row.Email,
			Company:     row.Company,
			Country:     row.Country,
			Description: row.Description,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Invalid Records:  %d\n", m.TotalInvalid)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n🏷️  TIER DISTRIBUTION\n")
	m.mu.Lock()
	tiers := make([]string, 0, len(m.tierCounts))
	for tier := range m.tierCounts {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	for _, tier := range tiers {
		count := m.tierCounts[tier]
		pct := 100 * float64(count) / float64(m.TotalProcessed)
		fmt.Printf("   %-10s %8d (%.2f%%)\n", tier, count, pct)
	}
	m.mu.Unlock()

	labeled := m.Agreements + m.Disagreements
	if labeled > 0 {
		agreement := float64(m.Agreements) / float64(labeled)
		fmt.Printf("\n🎯 TIER AGREEMENT\n")
		fmt.Printf("   Labeled:    %d\n", labeled)
		fmt.Printf("   Agreement:  %.4f  (%d / %d match the expected tier)\n", agreement, m.Agreements, labeled)

		if agreement >= 0.9 {
			fmt.Println("   ✅ Excellent agreement with labels")
		} else if agreement >= 0.7 {
			fmt.Println("   ⚠️  Moderate agreement - review keyword weights and thresholds")
		} else {
			fmt.Println("   ❌ Poor agreement - the configuration needs tuning")
		}
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	fmt.Println()
}
