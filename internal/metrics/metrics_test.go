package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollector_RecordAndScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignIn(true)
	c.RecordSignIn(false)
	c.RecordSignUp(true)
	c.RecordDashboardLoad("student", 120*time.Millisecond)
	c.RecordDashboardLoad("admin", 40*time.Millisecond)
	c.RecordStoreQueryError("student_count")
	c.RecordProvisionStepFailure("user")
	c.RecordEventsImported(3)
	c.RecordFeedImportFailure("fetch")
	c.RecordSessionsCleaned(12)
	c.RecordAttendanceRecalc(5)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	output := string(body)

	expected := []string{
		`acadport_signin_total{result="success"} 1`,
		`acadport_signin_total{result="failure"} 1`,
		`acadport_signup_total{result="success"} 1`,
		`acadport_dashboard_load_seconds_count{role="student"} 1`,
		`acadport_dashboard_load_seconds_count{role="admin"} 1`,
		`acadport_store_query_errors_total{query="student_count"} 1`,
		`acadport_provision_step_failures_total{step="user"} 1`,
		`acadport_events_imported_total 3`,
		`acadport_feed_import_failures_total{reason="fetch"} 1`,
		`acadport_sessions_cleaned_total 12`,
		`acadport_attendance_recalc_total 5`,
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected metrics output to contain %q", want)
		}
	}
}

func TestCollector_CountersAccumulate(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEventsImported(2)
	c.RecordEventsImported(4)
	c.RecordSessionsCleaned(1)
	c.RecordSessionsCleaned(9)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	output := string(body)

	if !strings.Contains(output, "acadport_events_imported_total 6") {
		t.Errorf("expected accumulated events_imported of 6, got output:\n%s", output)
	}
	if !strings.Contains(output, "acadport_sessions_cleaned_total 10") {
		t.Errorf("expected accumulated sessions_cleaned of 10, got output:\n%s", output)
	}
}

func TestSetupMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	srv := httptest.NewServer(SetupMetricsRoute(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("failed to request /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}

	other, err := http.Get(srv.URL + "/other")
	if err != nil {
		t.Fatalf("failed to request /other: %v", err)
	}
	defer other.Body.Close()

	if other.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown path, got %d", other.StatusCode)
	}
}
