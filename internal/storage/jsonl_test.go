package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"deltaHedge/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "reports.jsonl")
	sink := NewJsonlStorage(path)

	report := model.PositionReport{
		PositionID:   "7",
		Pair:         model.Pair{ID: "ETH/USDC", TokenA: model.TokenMeta{Symbol: "ETH", Decimals: 18}, TokenB: model.TokenMeta{Symbol: "USDC", Decimals: 6}},
		Range:        model.PriceRange{Low: 1800, High: 2200},
		CurrentPrice: 2000,
		AmountA:      1.5,
		AmountB:      3000,
		HedgeSide:    model.HedgeShort,
	}

	for _, ts := range []string{"2024-01-01T00:00:00Z", "2024-01-01T00:01:00Z"} {
		err := sink.PutReports(Snapshot{TakenAt: ts, Wallet: "0xabc", Reports: model.Views([]model.PositionReport{report})})
		if err != nil {
			t.Fatalf("put reports: %v", err)
		}
	}
	if err := sink.PutReports(Snapshot{TakenAt: "ignored"}); err != nil {
		t.Fatalf("empty snapshot: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[1]["taken_at"] != "2024-01-01T00:01:00Z" || lines[0]["wallet"] != "0xabc" {
		t.Fatalf("unexpected envelope: %+v", lines[0])
	}
	inner, ok := lines[0]["report"].(map[string]any)
	if !ok || inner["position_id"] != "7" || inner["amount_a"] != "1.5" {
		t.Fatalf("unexpected report: %+v", lines[0]["report"])
	}
}
