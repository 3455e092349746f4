package openrouter_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/helpmaton/billing-api/internal/pkg/openrouter"
)

func TestGenerationCostEscapesID(t *testing.T) {
	rawID := "gen-123&limit=9999#frag"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != rawID {
			t.Errorf("expected id %q, got %q", rawID, got)
		}
		fmt.Fprint(w, `{"data":{"id":"gen-123","model":"anthropic/claude-sonnet-4","total_cost":0.0025}}`)
	}))
	defer srv.Close()

	client := openrouter.NewClient(srv.URL, "test-key", time.Second)

	cost, err := client.GenerationCostNanoUSD(context.Background(), rawID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost != 2_500_000 {
		t.Fatalf("expected 2500000 nano-USD, got %d", cost)
	}
}

func TestGenerationCostNotReadyOn404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := openrouter.NewClient(srv.URL, "test-key", time.Second)

	_, err := client.GenerationCostNanoUSD(context.Background(), "gen-pending")
	if !errors.Is(err, openrouter.ErrGenerationNotReady) {
		t.Fatalf("expected ErrGenerationNotReady, got %v", err)
	}
}

func TestGenerationCostNotFoundOnEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	client := openrouter.NewClient(srv.URL, "test-key", time.Second)

	_, err := client.GenerationCostNanoUSD(context.Background(), "gen-unknown")
	if !errors.Is(err, openrouter.ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}
}
