//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel applicant
// scoring engine.
//
// These tests verify the COMPLETE assessment pipeline:
//
//	Profile → Scorecard → Decline Gates → Risk Tier → Offers
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
// 1. PROFILE: A flat map of applicant data points (credit, banking,
//    business fields). Values may be numbers, booleans, or strings.
//
// 2. SCORECARD: A weighted field list grouped into sections. Each field
//    earns points on a curve keyed off its name; the total score is
//    points earned over points possible, scaled to 0-100.
//
// 3. DECLINE GATE: Hard minimums checked before tiering:
//   - monthly_deposits < $20,000    → auto-decline
//   - deposit_frequency < 5 / month → auto-decline
//
// 4. RISK TIER: Score-to-tier mapping:
//   - 80+  → low
//   - 60+  → moderate
//   - 50+  → high
//   - else → super_high (no offers)
//
// 5. OFFERS: Scores of 50+ get a ladder of funding offers, capped by
//    the applicant's deposit capacity.
//
// The suite seeds its own scorecard via PUT /rules before asserting, so
// the target server only needs to be running with an empty database.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "test-tenant",
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

// AssessResponse is what POST /assess returns
type AssessResponse struct {
	AssessmentID string           `json:"assessment_id"`
	TenantID     string           `json:"tenant_id"`
	Decision     string           `json:"decision"` // "approved" or "declined"
	Score        ScoreResult      `json:"score"`
	Offers       []Offer          `json:"offers"`
	Metadata     ResponseMetadata `json:"metadata"`
}

type ScoreResult struct {
	TotalScore     float64  `json:"total_score"`
	RawScore       float64  `json:"raw_score"`
	MaxPossible    float64  `json:"max_possible"`
	RiskTier       string   `json:"risk_tier"`
	AutoDecline    bool     `json:"auto_decline"`
	DeclineReasons []string `json:"decline_reasons,omitempty"`
}

type Offer struct {
	Position         int     `json:"position"`
	Amount           float64 `json:"amount"`
	FactorRate       float64 `json:"factor_rate"`
	TermDays         int     `json:"term_days"`
	PaymentFrequency string  `json:"payment_frequency"`
	PaymentAmount    float64 `json:"payment_amount"`
}

type ResponseMetadata struct {
	TraceID       string `json:"trace_id"`
	FieldsScored  int    `json:"fields_scored"`
	EngineVersion string `json:"engine_version"`
}

// testScorecard is the weighted field set every scenario below assumes.
// Max possible: 35 points.
const testScorecard = `{
	"credit": {"credit_score": {"weight": 10}},
	"banking": {
		"monthly_deposits": {"weight": 10},
		"deposit_frequency": {"weight": 5}
	},
	"business": {"years_in_business": {"weight": 10}}
}`

// ============================================================================
// Test Helper Functions
// ============================================================================

func seedScorecard(t *testing.T, config TestConfig) {
	t.Helper()

	httpReq, err := http.NewRequest("PUT", config.BaseURL+"/rules", bytes.NewReader([]byte(testScorecard)))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Failed to seed scorecard: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Scorecard seed failed with %d: %s", resp.StatusCode, string(body))
	}
}

func assess(t *testing.T, config TestConfig, profile map[string]any) AssessResponse {
	t.Helper()

	resp, body := assessRaw(t, config, profile)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var result AssessResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func assessRaw(t *testing.T, config TestConfig, profile map[string]any) (*http.Response, []byte) {
	t.Helper()

	payload, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("Failed to marshal profile: %v", err)
	}

	httpReq, err := http.NewRequest("POST", config.BaseURL+"/assess", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp, body
}

// ============================================================================
// SCENARIO 1: Strong Applicant (Approved With Full Offer Ladder)
// ============================================================================

func TestStrongApplicant_Approved(t *testing.T) {
	/*
	   SCENARIO: An established business with prime credit and heavy deposits

	   EXPECTED BEHAVIOR:
	   - credit_score 760      → top step (750+) → 10 of 10 points
	   - monthly_deposits 60k  → 50k step (0.8)  → 8 of 10 points
	   - deposit_frequency 15  → top step (15+)  → 5 of 5 points
	   - years_in_business 12  → top step (10+)  → 10 of 10 points

	   FINAL DECISION: 33/35 → total 94.29 → low risk → 6 offers
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	result := assess(t, config, map[string]any{
		"credit_score":      760,
		"monthly_deposits":  60000,
		"deposit_frequency": 15,
		"years_in_business": 12,
	})

	// ASSERTIONS
	if result.Decision != "approved" {
		t.Errorf("Expected approved decision, got %s", result.Decision)
	}

	if result.Score.TotalScore != 94.29 {
		t.Errorf("Expected total score 94.29, got %.2f", result.Score.TotalScore)
	}

	if result.Score.RiskTier != "low" {
		t.Errorf("Expected low risk tier, got %s", result.Score.RiskTier)
	}

	if len(result.Offers) != 6 {
		t.Errorf("Expected 6 offers, got %d", len(result.Offers))
	}

	// Offer ladder: positions ascend, factor rates ascend, amounts descend
	for i := 1; i < len(result.Offers); i++ {
		prev, cur := result.Offers[i-1], result.Offers[i]
		if cur.Position != prev.Position+1 {
			t.Errorf("Expected contiguous positions, got %d then %d", prev.Position, cur.Position)
		}
		if cur.FactorRate <= prev.FactorRate {
			t.Errorf("Expected ascending factor rates, got %.4f then %.4f", prev.FactorRate, cur.FactorRate)
		}
		if cur.Amount >= prev.Amount {
			t.Errorf("Expected descending amounts, got %.2f then %.2f", prev.Amount, cur.Amount)
		}
	}

	t.Logf("✓ Strong applicant approved: score=%.2f, tier=%s, offers=%d",
		result.Score.TotalScore, result.Score.RiskTier, len(result.Offers))
}

// ============================================================================
// SCENARIO 2: Deposit Gates (Auto-Decline)
// ============================================================================

func TestThinDeposits_AutoDeclined(t *testing.T) {
	/*
	   SCENARIO: Great credit but deposits below both hard minimums

	   EXPECTED BEHAVIOR:
	   - monthly_deposits 15,000 < $20,000   → gate fires
	   - deposit_frequency 3 < 5             → gate fires
	   - TotalScore is zeroed, tier forced to super_high
	   - Both reasons are reported independently

	   WHY THIS MATTERS:
	   Credit quality cannot buy back an applicant whose bank activity
	   cannot sustain a daily or weekly payment schedule.
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	result := assess(t, config, map[string]any{
		"credit_score":      800,
		"monthly_deposits":  15000,
		"deposit_frequency": 3,
	})

	if result.Decision != "declined" {
		t.Errorf("Expected declined decision, got %s", result.Decision)
	}
	if !result.Score.AutoDecline {
		t.Error("Expected auto_decline flag")
	}
	if result.Score.TotalScore != 0 {
		t.Errorf("Expected gated total 0, got %.2f", result.Score.TotalScore)
	}
	if result.Score.RiskTier != "super_high" {
		t.Errorf("Expected super_high tier, got %s", result.Score.RiskTier)
	}
	if len(result.Score.DeclineReasons) != 2 {
		t.Errorf("Expected 2 decline reasons, got %v", result.Score.DeclineReasons)
	}
	if len(result.Offers) != 0 {
		t.Errorf("Expected no offers on decline, got %d", len(result.Offers))
	}

	t.Logf("✓ Thin-deposit applicant declined: reasons=%v", result.Score.DeclineReasons)
}

func TestExactDepositMinimums_NotGated(t *testing.T) {
	/*
	   SCENARIO: Deposits exactly at both minimums ($20,000 and 5/month)

	   EXPECTED BEHAVIOR:
	   - Gates check strict less-than, so exact minimums pass
	   - 10 + 4 + 2.5 + 10 of 35 → total 75.71 → moderate risk → offers

	   WHY THIS TEST:
	   Boundary conditions catch off-by-one errors in the gate logic.
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	result := assess(t, config, map[string]any{
		"credit_score":      760,
		"monthly_deposits":  20000,
		"deposit_frequency": 5,
		"years_in_business": 12,
	})

	if result.Score.AutoDecline {
		t.Errorf("Expected exact minimums to pass the gate, got reasons %v", result.Score.DeclineReasons)
	}
	if result.Decision != "approved" {
		t.Errorf("Expected approved at exact minimums, got %s", result.Decision)
	}
	if result.Score.TotalScore != 75.71 {
		t.Errorf("Expected total 75.71, got %.2f", result.Score.TotalScore)
	}

	t.Logf("✓ Boundary test passed: exact minimums → score=%.2f, tier=%s",
		result.Score.TotalScore, result.Score.RiskTier)
}

// ============================================================================
// SCENARIO 3: Low Score Without Gate (Declined, No Offers)
// ============================================================================

func TestWeakApplicant_NoOffers(t *testing.T) {
	/*
	   SCENARIO: Deposits clear the gates but the scorecard total is poor

	   EXPECTED BEHAVIOR:
	   - credit_score 400 is below every step → 0 points
	   - years_in_business missing → 0 of 10, still counts in denominator
	   - 0 + 4 + 2.5 + 0 of 35 → total 18.57 → super_high
	   - super_high gets no offer ladder → declined WITHOUT auto_decline
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	result := assess(t, config, map[string]any{
		"credit_score":      400,
		"monthly_deposits":  22000,
		"deposit_frequency": 6,
	})

	if result.Score.AutoDecline {
		t.Error("Expected gates to pass, got auto_decline")
	}
	if result.Decision != "declined" {
		t.Errorf("Expected declined decision, got %s", result.Decision)
	}
	if result.Score.TotalScore != 18.57 {
		t.Errorf("Expected total 18.57, got %.2f", result.Score.TotalScore)
	}
	if len(result.Offers) != 0 {
		t.Errorf("Expected no offers for super_high tier, got %d", len(result.Offers))
	}

	t.Logf("✓ Weak applicant declined without gate: score=%.2f", result.Score.TotalScore)
}

// ============================================================================
// SCENARIO 4: Assessment Retrieval
// ============================================================================

func TestAssessmentRetrieval(t *testing.T) {
	/*
	   SCENARIO: POST /assess then GET /assessments/{id}

	   EXPECTED BEHAVIOR:
	   - The stored assessment is retrievable by ID under the same tenant
	   - Score and offers round-trip through storage
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	created := assess(t, config, map[string]any{
		"credit_score":      720,
		"monthly_deposits":  45000,
		"deposit_frequency": 12,
		"years_in_business": 6,
	})

	if created.AssessmentID == "" {
		t.Fatal("Missing assessment_id")
	}

	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/assessments/"+created.AssessmentID, nil)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var stored struct {
		ID    string      `json:"id"`
		Score ScoreResult `json:"score"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatalf("Failed to unmarshal stored assessment: %v", err)
	}

	if stored.ID != created.AssessmentID {
		t.Errorf("Expected ID %s, got %s", created.AssessmentID, stored.ID)
	}
	if stored.Score.TotalScore != created.Score.TotalScore {
		t.Errorf("Expected stored score %.2f, got %.2f",
			created.Score.TotalScore, stored.Score.TotalScore)
	}

	t.Logf("✓ Assessment retrieved: id=%s, score=%.2f", stored.ID[:8], stored.Score.TotalScore)
}

// ============================================================================
// SCENARIO 5: Scorecard Management
// ============================================================================

func TestScorecardReplace(t *testing.T) {
	/*
	   SCENARIO: Replace the scorecard, assess, then restore

	   EXPECTED BEHAVIOR:
	   - PUT /rules swaps the active scorecard atomically
	   - A single-field scorecard scores against that field alone
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	single := `{"credit": {"credit_score": {"weight": 10}}}`
	httpReq, _ := http.NewRequest("PUT", config.BaseURL+"/rules", bytes.NewReader([]byte(single)))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 on replace, got %d", resp.StatusCode)
	}

	// Restore the shared scorecard even if assertions fail
	defer seedScorecard(t, config)

	result := assess(t, config, map[string]any{
		"credit_score":      760,
		"monthly_deposits":  60000,
		"deposit_frequency": 15,
	})

	// Only credit_score is on the card: 10 of 10 → 100
	if result.Score.TotalScore != 100 {
		t.Errorf("Expected total 100 against single-field scorecard, got %.2f", result.Score.TotalScore)
	}
	if result.Score.MaxPossible != 10 {
		t.Errorf("Expected max possible 10, got %.1f", result.Score.MaxPossible)
	}

	t.Logf("✓ Scorecard replace applied: score=%.2f against replaced card", result.Score.TotalScore)
}

func TestGetRules(t *testing.T) {
	config := getTestConfig()
	seedScorecard(t, config)

	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/rules", nil)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var rules struct {
		Fields int `json:"fields"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &rules); err != nil {
		t.Fatalf("Failed to unmarshal rules: %v", err)
	}

	if rules.Fields != 4 {
		t.Errorf("Expected 4 scorecard fields, got %d", rules.Fields)
	}

	t.Logf("✓ Active scorecard reported: fields=%d", rules.Fields)
}

// ============================================================================
// SCENARIO 6: Input Validation
// ============================================================================

func TestEmptyProfile_Error(t *testing.T) {
	/*
	   SCENARIO: Request with an empty profile

	   EXPECTED: HTTP 400 Bad Request
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	resp, _ := assessRaw(t, config, map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty profile, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: empty profile → HTTP %d", resp.StatusCode)
}

func TestUnparseableStartDate_Error(t *testing.T) {
	/*
	   SCENARIO: business_start_date that no supported layout can parse

	   EXPECTED: HTTP 422 Unprocessable Entity (data error, not malformed request)
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	resp, body := assessRaw(t, config, map[string]any{
		"business_start_date": "whenever",
		"monthly_deposits":    60000,
		"deposit_frequency":   15,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for unparseable start date, got %d: %s", resp.StatusCode, string(body))
	}

	t.Logf("✓ Validation test passed: bad start date → HTTP %d", resp.StatusCode)
}

func TestMissingTenantHeader_Error(t *testing.T) {
	/*
	   SCENARIO: Request without X-Tenant-ID header

	   EXPECTED: HTTP 400 Bad Request (tenant is a required field, not auth)
	*/
	config := getTestConfig()

	payload, _ := json.Marshal(map[string]any{"credit_score": 700})
	httpReq, _ := http.NewRequest("POST", config.BaseURL+"/assess", bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	// NO X-Tenant-ID header!

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
	}

	t.Logf("✓ Validation test passed: missing tenant → HTTP %d", resp.StatusCode)
}

// ============================================================================
// SCENARIO 7: Insights
// ============================================================================

func TestInsightsSummary(t *testing.T) {
	/*
	   SCENARIO: Aggregate view over the assessments created by this suite

	   EXPECTED BEHAVIOR:
	   - GET /insights/summary returns counts covering prior POSTs
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	// Guarantee at least one assessment in the window
	assess(t, config, map[string]any{
		"credit_score":      700,
		"monthly_deposits":  50000,
		"deposit_frequency": 10,
	})

	httpReq, _ := http.NewRequest("GET", config.BaseURL+"/insights/summary?days=7", nil)
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, string(body))
	}

	var summary struct {
		WindowDays       int     `json:"window_days"`
		TotalAssessments int     `json:"total_assessments"`
		ApprovalRate     float64 `json:"approval_rate"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &summary); err != nil {
		t.Fatalf("Failed to unmarshal summary: %v", err)
	}

	if summary.WindowDays != 7 {
		t.Errorf("Expected window 7, got %d", summary.WindowDays)
	}
	if summary.TotalAssessments < 1 {
		t.Errorf("Expected at least 1 assessment in summary, got %d", summary.TotalAssessments)
	}

	t.Logf("✓ Insights summary: total=%d, approval_rate=%.1f%%",
		summary.TotalAssessments, summary.ApprovalRate)
}

// ============================================================================
// SCENARIO 8: Response Metadata Verification
// ============================================================================

func TestResponseMetadata(t *testing.T) {
	/*
	   SCENARIO: Verify response includes all required metadata

	   This ensures the API contract is stable for clients.
	*/
	config := getTestConfig()
	seedScorecard(t, config)

	result := assess(t, config, map[string]any{
		"credit_score":      700,
		"monthly_deposits":  50000,
		"deposit_frequency": 10,
	})

	if result.AssessmentID == "" {
		t.Error("Missing assessment_id")
	}
	if result.TenantID != config.TenantID {
		t.Errorf("Expected tenant %s, got %s", config.TenantID, result.TenantID)
	}
	if result.Decision != "approved" && result.Decision != "declined" {
		t.Errorf("Invalid decision: %s (expected approved or declined)", result.Decision)
	}
	if result.Score.TotalScore < 0 || result.Score.TotalScore > 100 {
		t.Errorf("Score out of range: %.2f (expected 0-100)", result.Score.TotalScore)
	}
	if result.Metadata.TraceID == "" {
		t.Error("Missing metadata.trace_id")
	}
	// Every scorecard field counts, supplied or not
	if result.Metadata.FieldsScored != 4 {
		t.Errorf("Expected 4 fields scored, got %d", result.Metadata.FieldsScored)
	}
	if result.Metadata.EngineVersion == "" {
		t.Error("Missing metadata.engine_version")
	}
	if result.Offers == nil {
		t.Error("Expected offers array, got null")
	}

	t.Logf("✓ Metadata complete: id=%s, traceId=%s, engine=%s",
		result.AssessmentID[:8], result.Metadata.TraceID[:8], result.Metadata.EngineVersion)
}
