// Package main runs a booking smoke test against a live API.
//
// It grants a patient a promotion credit, books an appointment that spends
// part of it, confirms the slot is taken, cancels with full notice and checks
// the refund landed back in the balance.
//
// Usage:
//
//	go run ./scripts/smoke --api=http://localhost:8080 [--secret=SECRET] [--date=YYYY-MM-DD]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	flagAPI    string
	flagSecret string
	flagDate   string
)

func init() {
	flag.StringVar(&flagAPI, "api", "http://localhost:8080", "API base URL")
	flag.StringVar(&flagSecret, "secret", "", "JWT secret (or JWT_SECRET env)")
	flag.StringVar(&flagDate, "date", "", "Appointment date, defaults to 30 days out")
}

// ---------------------------------------------------------------------------
// JWT
// ---------------------------------------------------------------------------

func token(subject, role string) string {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(flagSecret))
	if err != nil {
		fail("sign token: %v", err)
	}
	return signed
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func call(method, path, bearer string, body any, wantStatus int, out any) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			fail("encode %s: %v", path, err)
		}
	}
	req, err := http.NewRequest(method, flagAPI+path, &buf)
	if err != nil {
		fail("build %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fail("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		fail("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, string(raw))
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			fail("decode %s: %v", path, err)
		}
	}
	pass("%s %s -> %d", method, path, resp.StatusCode)
}

func pass(format string, args ...any) { fmt.Printf("  ✓ "+format+"\n", args...) }

func fail(format string, args ...any) {
	fmt.Printf("  ✗ "+format+"\n", args...)
	os.Exit(1)
}

// ---------------------------------------------------------------------------
// Flow
// ---------------------------------------------------------------------------

func main() {
	flag.Parse()
	if flagSecret == "" {
		flagSecret = os.Getenv("JWT_SECRET")
	}
	if flagSecret == "" {
		fmt.Println("--secret or JWT_SECRET is required")
		os.Exit(2)
	}
	if flagDate == "" {
		flagDate = time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	}

	patientID := "smoke-" + uuid.NewString()[:8]
	resource := "smoke-room-" + uuid.NewString()[:8]
	admin := token("smoke-admin", "admin")
	patient := token(patientID, "patient")

	fmt.Printf("smoke test against %s (patient %s, %s)\n", flagAPI, patientID, flagDate)

	call(http.MethodPost, "/admin/users/"+patientID+"/credits", admin, map[string]any{
		"amount":      "25.00",
		"category":    "promotion",
		"description": "smoke test",
	}, http.StatusCreated, nil)

	var appt struct {
		ID string `json:"id"`
	}
	call(http.MethodPost, "/api/v1/appointments", patient, map[string]any{
		"service_name":     "Smoke facial",
		"price":            "80.00",
		"date":             flagDate,
		"start":            "14:00",
		"duration_minutes": 60,
		"resource_ids":     []string{resource},
		"credits_to_apply": "10.00",
	}, http.StatusCreated, &appt)

	var check struct {
		Available bool `json:"available"`
	}
	call(http.MethodPost, "/api/v1/availability/check", patient, map[string]any{
		"date":             flagDate,
		"start":            "14:30",
		"duration_minutes": 30,
		"resource_ids":     []string{resource},
	}, http.StatusOK, &check)
	if check.Available {
		fail("slot at 14:30 should be taken")
	}
	pass("overlapping slot reported busy")

	var cancelled struct {
		RefundPercentage int64  `json:"refund_percentage"`
		CreditAmount     string `json:"credit_amount"`
	}
	call(http.MethodPost, "/api/v1/appointments/"+appt.ID+"/cancel", patient, nil, http.StatusOK, &cancelled)
	if cancelled.RefundPercentage != 100 {
		fail("expected full refund, got %d%%", cancelled.RefundPercentage)
	}

	var balance struct {
		Balance string `json:"balance"`
	}
	call(http.MethodGet, "/api/v1/credits/balance", patient, nil, http.StatusOK, &balance)
	// 25.00 granted - 10.00 spent + 80.00 refunded
	if balance.Balance != "95" && balance.Balance != "95.00" {
		fail("expected balance 95.00, got %s", balance.Balance)
	}
	pass("balance %s after refund", balance.Balance)
	fmt.Println("smoke test passed")
}
