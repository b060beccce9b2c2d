package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
	"github.com/tuckwoor/garmin-analysis/internal/gather"
	"github.com/tuckwoor/garmin-analysis/internal/garmin"
	"github.com/tuckwoor/garmin-analysis/internal/store"
	"github.com/tuckwoor/garmin-analysis/internal/util"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GARMIN_CONFIG", "GARMIN_DATA_DIR", "GARMIN_JOURNAL_PATH", "GARMIN_EMAIL", "GARMIN_PASSWORD",
		"GARMIN_BASE_URL", "GARMIN_AUTH_URL", "GARMIN_DISPLAY_NAME", "LOG_LEVEL",
		"GARMIN_MAX_AUTH_FAILURES",
	} {
		t.Setenv(k, "")
	}
}

// writeConfig writes a config pointing at a fresh data directory and returns
// the config path and the data directory.
func writeConfig(t *testing.T, baseURL string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	content := fmt.Sprintf(`
storage:
  data_dir: %q
garmin:
  email: "runner@example.com"
  password: "secret"
  base_url: %q
logging:
  level: "error"
fetch:
  rate_limit_per_min: 1000
  retry_delay: 0s
  batch_delay: 0s
  timezone: "UTC"
`, dataDir, baseURL)

	path := filepath.Join(dir, "garmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dataDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// fakeConnect serves the login endpoint and every metric endpoint. Stress
// days carry data; everything else is empty.
func fakeConnect(t *testing.T, loginStatus int) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var logins, gets atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/login" {
			logins.Add(1)
			if loginStatus != http.StatusOK {
				w.WriteHeader(loginStatus)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok","display_name":"runner"}`))
			return
		}

		gets.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if d, ok := strings.CutPrefix(r.URL.Path, "/wellness-service/wellness/dailyStress/"); ok {
			_, _ = fmt.Fprintf(w, `{"calendarDate":%q,"avgStressLevel":25}`, d)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, &logins, &gets
}

func TestFetchSingleWindow(t *testing.T) {
	clearEnv(t)
	srv, logins, gets := fakeConnect(t, http.StatusOK)
	cfgPath, dataDir := writeConfig(t, srv.URL)

	today := util.DateOf(time.Now().UTC())
	start := util.AddDays(today, -3)

	_, err := execute(t, "--config", cfgPath, "fetch", "--date", util.FormatDate(start))
	require.NoError(t, err)
	require.EqualValues(t, 1, logins.Load())
	require.EqualValues(t, 4*len(domain.DailyTypes)+1, gets.Load())

	cache := store.NewJSONCache(dataDir)
	raw, err := cache.Read(domain.DataTypeStress, store.DateKey(start))
	require.NoError(t, err)
	require.True(t, garmin.HasData(raw))
	require.True(t, cache.Exists(domain.DataTypeHeartRate, store.DateKey(today)))
	require.True(t, cache.Exists(domain.DataTypeBodyBattery, domain.FetchWindow{Start: start, End: today}.Key()))

	out, err := execute(t, "--config", cfgPath, "status")
	require.NoError(t, err)
	require.Contains(t, out, string(domain.RunModeSingleWindow))
	require.Contains(t, out, gather.RunCompleted)
}

func TestFetchRejectedCredentials(t *testing.T) {
	clearEnv(t)
	srv, logins, gets := fakeConnect(t, http.StatusUnauthorized)
	cfgPath, _ := writeConfig(t, srv.URL)

	_, err := execute(t, "--config", cfgPath, "fetch", "--date", "2024-01-01")
	require.Error(t, err)
	require.True(t, garmin.IsAuth(err))
	require.EqualValues(t, 1, logins.Load(), "rejected credentials are not retried")
	require.Zero(t, gets.Load())
}

func TestFetchRequiresCredentials(t *testing.T) {
	clearEnv(t)
	srv, logins, _ := fakeConnect(t, http.StatusOK)
	cfgPath, _ := writeConfig(t, srv.URL)
	t.Setenv("GARMIN_EMAIL", "not-an-email")

	_, err := execute(t, "--config", cfgPath, "fetch")
	require.Error(t, err)
	require.Zero(t, logins.Load())
}

func TestFetchRejectsBadDate(t *testing.T) {
	clearEnv(t)
	srv, logins, _ := fakeConnect(t, http.StatusOK)
	cfgPath, _ := writeConfig(t, srv.URL)

	_, err := execute(t, "--config", cfgPath, "fetch", "--date", "01/02/2024")
	require.Error(t, err)
	require.Zero(t, logins.Load())
}

func seedCache(t *testing.T, dataDir string) {
	t.Helper()
	cache := store.NewJSONCache(dataDir)
	stress := map[string]int{"2024-01-01": 20, "2024-01-02": 30, "2024-01-03": 40}
	for d, v := range stress {
		payload := fmt.Sprintf(`{"calendarDate":%q,"avgStressLevel":%d}`, d, v)
		require.NoError(t, cache.Write(domain.DataTypeStress, d, json.RawMessage(payload)))
	}
	sleep := map[string]int{"2024-01-01": 1000, "2024-01-02": 2000, "2024-01-03": 1000, "2024-01-04": 1500}
	for d, v := range sleep {
		payload := fmt.Sprintf(`{"dailySleepDTO":{"calendarDate":%q,"deepSleepSeconds":%d}}`, d, v)
		require.NoError(t, cache.Write(domain.DataTypeSleep, d, json.RawMessage(payload)))
	}
}

func TestReportJSON(t *testing.T) {
	clearEnv(t)
	cfgPath, dataDir := writeConfig(t, "https://connect.example.com")
	seedCache(t, dataDir)

	out, err := execute(t, "--config", cfgPath, "report", "--format", "json")
	require.NoError(t, err)

	var got struct {
		AnalysisStart string `json:"analysis_start"`
		BestDay       string `json:"best_day"`
		Days          int    `json:"days"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "2024-01-01", got.AnalysisStart)
	require.Equal(t, "Tuesday", got.BestDay)
	require.Equal(t, 4, got.Days)
}

func TestReportSavesWithoutOverwriting(t *testing.T) {
	clearEnv(t)
	cfgPath, dataDir := writeConfig(t, "https://connect.example.com")
	seedCache(t, dataDir)
	outDir := filepath.Join(t.TempDir(), "reports")

	for range 2 {
		out, err := execute(t, "--config", cfgPath, "report", "--out-dir", outDir, "--parquet")
		require.NoError(t, err)
		require.Contains(t, out, "The best day for heavy exercise is: Tuesday")
	}

	for _, name := range []string{"report.txt", "report_1.txt", "daily_metrics.parquet", "daily_metrics_1.parquet"} {
		_, err := os.Stat(filepath.Join(outDir, name))
		require.NoError(t, err, name)
	}

	rows, err := store.ReadDailyMetrics(filepath.Join(outDir, "daily_metrics.parquet"))
	require.NoError(t, err)
	require.Len(t, rows, 4)
}

func TestReportEmptyCache(t *testing.T) {
	clearEnv(t)
	cfgPath, _ := writeConfig(t, "https://connect.example.com")

	out, err := execute(t, "--config", cfgPath, "report")
	require.NoError(t, err)
	require.Contains(t, out, "Not enough data to calculate the combined score.")
}

func TestReportParquetNeedsOutDir(t *testing.T) {
	clearEnv(t)
	cfgPath, _ := writeConfig(t, "https://connect.example.com")

	_, err := execute(t, "--config", cfgPath, "report", "--parquet")
	require.Error(t, err)
}

func TestStatusListsFailures(t *testing.T) {
	clearEnv(t)
	cfgPath, dataDir := writeConfig(t, "https://connect.example.com")

	j, err := store.NewSQLiteJournal(filepath.Join(dataDir, "journal.db"))
	require.NoError(t, err)
	ctx := context.Background()
	id, err := j.StartRun(ctx, domain.RunModeIncremental, "2024-01-01")
	require.NoError(t, err)
	require.NoError(t, j.RecordFetch(ctx, domain.FetchRecord{
		RunID: id, DataType: domain.DataTypeHRV, Key: "2024-01-02",
		Status: domain.FetchFailed, ErrorKind: "connection", Message: "connection reset", Attempts: 1,
	}))
	require.NoError(t, j.FinishRun(ctx, id, gather.RunCompleted))
	require.NoError(t, j.Close())

	out, err := execute(t, "--config", cfgPath, "status", "--failed")
	require.NoError(t, err)
	require.Contains(t, out, "Fetch runs")
	require.Contains(t, out, string(domain.RunModeIncremental))
	require.Contains(t, out, "Failed fetches")
	require.Contains(t, out, "2024-01-02")
	require.Contains(t, out, "connection reset")
}

func TestStatusEmptyJournal(t *testing.T) {
	clearEnv(t)
	cfgPath, _ := writeConfig(t, "https://connect.example.com")

	out, err := execute(t, "--config", cfgPath, "status", "--failed")
	require.NoError(t, err)
	require.Contains(t, out, "No fetch runs recorded.")
	require.Contains(t, out, "No failed fetches.")
}

func TestScheduleRejectsBadTime(t *testing.T) {
	clearEnv(t)
	cfgPath, _ := writeConfig(t, "https://connect.example.com")

	_, err := execute(t, "--config", cfgPath, "schedule", "--at", "7am")
	require.Error(t, err)
}

func TestBadConfigFails(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "garmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch:\n  window_days: 0\n"), 0o644))

	_, err := execute(t, "--config", path, "report")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "garmin dev\n", out)
}

func TestLogFileName(t *testing.T) {
	now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	require.Equal(t, "/tmp/garmin-2024-03-09.log", logFileName("/tmp/garmin-{date}.log", now))
	require.Equal(t, "garmin.log", logFileName("garmin.log", now))
}
