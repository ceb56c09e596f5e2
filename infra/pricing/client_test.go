package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func servePoints(t *testing.T, start time.Time, step time.Duration, prices []float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("area") != "SE3" {
			http.Error(w, "unknown area", http.StatusBadRequest)
			return
		}
		var out []pricePoint
		for i, p := range prices {
			out = append(out, pricePoint{Start: start.Add(time.Duration(i) * step), Price: p})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestFetchPrices(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	srv := servePoints(t, start, 15*time.Minute, []float64{0.10, 0.12, 0.50, 0.11})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Area: "SE3", StepMinutes: 15})
	curve, err := c.FetchPrices(context.Background(), start, start.Add(time.Hour))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(curve.Points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(curve.Points))
	}
	if p, ok := curve.At(start.Add(30 * time.Minute)); !ok || p != 0.50 {
		t.Fatalf("At(+30m) = %v, %v", p, ok)
	}
}

func TestFetchPricesSlicesToRange(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	srv := servePoints(t, start, 15*time.Minute, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Area: "SE3", StepMinutes: 15})
	curve, err := c.FetchPrices(context.Background(), start.Add(30*time.Minute), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(curve.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(curve.Points))
	}
	if curve.Points[0].Price != 3 {
		t.Fatalf("first sliced price = %v", curve.Points[0].Price)
	}
}

func TestFetchPricesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Area: "SE3"})
	if _, err := c.FetchPrices(context.Background(), time.Now(), time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestFetchPricesRejectsGappyCurve(t *testing.T) {
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		out := []pricePoint{
			{Start: start, Price: 1},
			{Start: start.Add(45 * time.Minute), Price: 2},
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Area: "SE3", StepMinutes: 15})
	if _, err := c.FetchPrices(context.Background(), start, start.Add(time.Hour)); err == nil {
		t.Fatal("expected validation error for gappy curve")
	}
}
