// Benchmark tool for replaying labeled applicant data against Kestrel.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/applicants.csv -url http://localhost:8080
//
// This tool:
//   1. Reads applicant data from a CSV (one column holds the funded/declined label)
//   2. Sends each applicant to Kestrel for assessment
//   3. Compares Kestrel's decision (approved/declined) with the actual label
//   4. Calculates precision, recall, F1-score, and confusion matrix
//
// Every non-label column becomes a profile field, so the CSV schema is free-form
// as long as the column names match the active scorecard.
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
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Applicant represents a row from the labeled dataset.
type Applicant struct {
	Row     int
	Profile map[string]any
	Funded  bool
}

// AssessResponse is the subset of the Kestrel API response we score against.
type AssessResponse struct {
	ID    string `json:"id"`
	Score struct {
		TotalScore  float64 `json:"total_score"`
		AutoDecline bool    `json:"auto_decline"`
		RiskTier    string  `json:"risk_tier"`
	} `json:"score"`
	Offers   []json.RawMessage `json:"offers"`
	Decision string            `json:"decision"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Funded applicant approved
	FalsePositives int64 // Unfunded applicant approved
	TrueNegatives  int64 // Unfunded applicant declined
	FalseNegatives int64 // Funded applicant declined (missed business!)

	TotalProcessed int64
	TotalFunded    int64
	TotalUnfunded  int64
	TotalErrors    int64
	TotalRejected  int64 // 422 responses (bad applicant data)

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled applicant CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	labelCol := flag.String("label", "funded", "CSV column holding the funded label (1/0)")
	limit := flag.Int("limit", 10000, "Maximum applicants to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each assessment result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/applicants.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         KESTREL BENCHMARK - Applicant Decision Replay         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:     %s\n", *csvPath)
	fmt.Printf("Kestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Label Column: %s\n", *labelCol)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Limit:        %d\n", *limit)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read applicant data
	fmt.Printf("\nReading applicants from %s...\n", *csvPath)
	applicants, err := readApplicantCSV(*csvPath, *labelCol, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d applicants\n", len(applicants))

	fundedCount := 0
	for _, a := range applicants {
		if a.Funded {
			fundedCount++
		}
	}
	fmt.Printf("  - Funded:    %d (%.2f%%)\n", fundedCount, 100*float64(fundedCount)/float64(len(applicants)))
	fmt.Printf("  - Unfunded:  %d (%.2f%%)\n", len(applicants)-fundedCount, 100*float64(len(applicants)-fundedCount)/float64(len(applicants)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(applicants, *baseURL, *tenantID, *workers, *verbose)
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

func readApplicantCSV(path, labelCol string, limit int) ([]Applicant, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	labelIdx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), labelCol) {
			labelIdx = i
			break
		}
	}
	if labelIdx < 0 {
		return nil, fmt.Errorf("label column %q not found in header", labelCol)
	}

	var applicants []Applicant
	row := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			continue // Skip malformed rows
		}

		profile := make(map[string]any, len(header)-1)
		for i, col := range header {
			if i == labelIdx || i >= len(record) {
				continue
			}
			val := strings.TrimSpace(record[i])
			if val == "" {
				continue
			}
			// Send numbers as numbers so the scorer sees native types
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				profile[strings.TrimSpace(col)] = f
			} else {
				profile[strings.TrimSpace(col)] = val
			}
		}

		label := strings.TrimSpace(record[labelIdx])
		funded := label == "1" || strings.EqualFold(label, "true") || strings.EqualFold(label, "yes")

		applicants = append(applicants, Applicant{
			Row:     row,
			Profile: profile,
			Funded:  funded,
		})

		if limit > 0 && len(applicants) >= limit {
			break
		}
	}

	return applicants, nil
}

func runBenchmark(applicants []Applicant, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan Applicant, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for a := range work {
				start := time.Now()
				result, status, err := assessApplicant(client, baseURL, tenantID, a)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					if status == http.StatusUnprocessableEntity {
						atomic.AddInt64(&metrics.TotalRejected, 1)
					} else {
						atomic.AddInt64(&metrics.TotalErrors, 1)
					}
					if verbose {
						fmt.Printf("ERROR: row %d -> %v\n", a.Row, err)
					}
					continue
				}

				if a.Funded {
					atomic.AddInt64(&metrics.TotalFunded, 1)
				} else {
					atomic.AddInt64(&metrics.TotalUnfunded, 1)
				}

				predicted := result.Decision == "approved"
				actual := a.Funded

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					fmt.Printf("%s row %-6d | Funded: %-5v | Kestrel: %-8s | Score: %6.2f | Tier: %-10s | Offers: %d\n",
						status,
						a.Row,
						a.Funded,
						result.Decision,
						result.Score.TotalScore,
						result.Score.RiskTier,
						len(result.Offers),
					)
				}
			}
		}()
	}

	for _, a := range applicants {
		work <- a
	}
	close(work)

	wg.Wait()

	return metrics
}

func assessApplicant(client *http.Client, baseURL, tenantID string, a Applicant) (*AssessResponse, int, error) {
	body, err := json.Marshal(a.Profile)
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, err
	}

	return &result, resp.StatusCode, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Funded:     %d\n", m.TotalFunded)
	fmt.Printf("   Total Unfunded:   %d\n", m.TotalUnfunded)
	fmt.Printf("   Rejected (422):   %d\n", m.TotalRejected)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  approved    declined")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("          NF  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DECISION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of approvals, how many were fundable)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fundable applicants, how many approved)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct decisions)\n", accuracy)

	fmt.Printf("\n🔍 DECISION ANALYSIS\n")
	if m.TotalFunded > 0 {
		approvalRate := float64(m.TruePositives) / float64(m.TotalFunded) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFunded) * 100
		fmt.Printf("   Fundable Approved:  %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFunded, approvalRate)
		fmt.Printf("   Fundable Declined:  %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFunded, missRate)
	}
	if m.TotalUnfunded > 0 {
		badApprovalRate := float64(m.FalsePositives) / float64(m.TotalUnfunded) * 100
		fmt.Printf("   Bad Approvals:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalUnfunded, badApprovalRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - approving most fundable applicants")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but declining some fundable applicants")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant fundable volume declined")
	} else {
		fmt.Println("   ❌ Poor recall - most fundable applicants are being declined!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - approvals are sound")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many risky approvals")
	} else {
		fmt.Println("   ❌ Very low precision - mostly risky approvals")
	}

	fmt.Println()
}
