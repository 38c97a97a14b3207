package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quantfold/mmsim/internal/domain"
)

type stubStatus struct {
	ticks map[string]domain.TickStatus
}

func (s *stubStatus) LatestTick(_ context.Context, runID string) (domain.TickStatus, error) {
	tick, ok := s.ticks[runID]
	if !ok {
		return domain.TickStatus{}, domain.ErrNotFound
	}
	return tick, nil
}

type stubReports struct {
	reports map[string]domain.RunReport
}

func (s *stubReports) GetReport(_ context.Context, runID string) (domain.RunReport, error) {
	report, ok := s.reports[runID]
	if !ok {
		return domain.RunReport{}, domain.ErrNotFound
	}
	return report, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	status := &stubStatus{ticks: map[string]domain.TickStatus{
		"run-1": {RunID: "run-1", Tick: 42, TotalExposureUSD: 120.5, FillCount: 3},
	}}
	reports := &stubReports{reports: map[string]domain.RunReport{
		"run-1": {RunID: "run-1", Verdict: domain.VerdictPass, TruthfulRate: 1},
	}}
	srv := httptest.NewServer(NewRouter(status, reports, slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/run-1/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var tick domain.TickStatus
	if err := json.NewDecoder(resp.Body).Decode(&tick); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tick.Tick != 42 || tick.FillCount != 3 {
		t.Fatalf("tick = %+v", tick)
	}

	missing, err := http.Get(srv.URL + "/runs/unknown/status")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", missing.StatusCode)
	}
}

func TestReportEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/runs/run-1/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	defer resp.Body.Close()

	var report domain.RunReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Verdict != domain.VerdictPass {
		t.Fatalf("verdict = %s", report.Verdict)
	}

	missing, err := http.Get(srv.URL + "/runs/unknown/report")
	if err != nil {
		t.Fatalf("GET missing: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing report status = %d, want 404", missing.StatusCode)
	}
}
