package ledger_test

import (
	"sort"
	"testing"
	"time"

	"github.com/helpmaton/billing-api/internal/domain/ledger"
)

func TestMoneyConversion(t *testing.T) {
	if got := ledger.USDToNano(5.0); got != 5_000_000_000 {
		t.Fatalf("USDToNano(5.0) = %d", got)
	}
	if got := ledger.USDToNano(0.000000001); got != 1 {
		t.Fatalf("USDToNano(1e-9) = %d", got)
	}
	if got := ledger.NanoToUSD(2_500_000_000); got != 2.5 {
		t.Fatalf("NanoToUSD(2500000000) = %f", got)
	}
}

func TestSortKeyOrdering(t *testing.T) {
	base := time.Now().UTC()
	keys := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		keys = append(keys, ledger.NewSortKey(base.Add(time.Duration(i)*time.Millisecond)))
	}

	if !sort.StringsAreSorted(keys) {
		t.Fatalf("sort keys not lexicographically ordered: %v", keys)
	}

	seen := make(map[string]bool)
	for _, k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %s", k)
		}
		seen[k] = true
	}
}

func TestSourceValid(t *testing.T) {
	valid := []ledger.Source{
		ledger.SourceTextGeneration,
		ledger.SourceEmbeddingGeneration,
		ledger.SourceToolExecution,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}

	if ledger.Source("image-generation").Valid() {
		t.Fatal("unknown source should be invalid")
	}
	if ledger.Source("").Valid() {
		t.Fatal("empty source should be invalid")
	}
}
