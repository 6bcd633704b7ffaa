package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/advisorhub/internal/advisor"
	"github.com/kalambet/advisorhub/internal/api"
	"github.com/kalambet/advisorhub/internal/config"
	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/portfolio"
	"github.com/kalambet/advisorhub/internal/report"
	"github.com/kalambet/advisorhub/internal/storage"
)

const testToken = "test-token"

var ctx = context.Background()

// newTestServer runs the real API over a memory contact log.
func newTestServer(t *testing.T) (*httptest.Server, *apiClient) {
	t.Helper()
	catalog, err := portfolio.Load()
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	svc := advisor.NewService(catalog, contactlog.NewMemoryStore(), nil)
	srv := httptest.NewServer(api.NewAppHandler(api.AppDeps{Service: svc, Token: testToken}))
	t.Cleanup(srv.Close)

	return srv, &apiClient{baseURL: srv.URL, token: testToken, httpClient: srv.Client()}
}

func TestMerchantsCommand(t *testing.T) {
	_, client := newTestServer(t)
	noColor = true

	var out bytes.Buffer
	if err := runMerchants(ctx, client, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"Tienda Alpha", "30712345678", "+7.14%", "Bazar Beta", "AtRisk", "3 merchants"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestLogThenHistory(t *testing.T) {
	_, client := newTestServer(t)
	noColor = true

	e, err := runLog(ctx, client, "Tienda Alpha", api.ContactRequest{
		AdvisorName: "Ana",
		Channel:     "Call",
		Priority:    "High",
		Summary:     "monthly review",
		Commitment:  "send working capital offer",
		Date:        "2026-03-14",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.MerchantTaxID != 30712345678 {
		t.Errorf("merchant tax id = %d", e.MerchantTaxID)
	}
	if e.ID == "" {
		t.Error("expected an entry id")
	}

	var out bytes.Buffer
	if err := runHistory(ctx, client, "30712345678", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Tienda Alpha | CUIT: 30712345678 | Nro: 123456789",
		"2026-03-14",
		"monthly review",
		"Commitment: send working capital offer",
		"Follow up",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestHistory_NoContacts(t *testing.T) {
	_, client := newTestServer(t)

	var out bytes.Buffer
	if err := runHistory(ctx, client, "Moda Gamma", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No contacts recorded.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestLog_ServerRejects(t *testing.T) {
	_, client := newTestServer(t)

	tests := []struct {
		name string
		ref  string
		req  api.ContactRequest
		want string
	}{
		{"unknown merchant", "Tienda Omega", api.ContactRequest{AdvisorName: "Ana", Channel: "Call"}, "404"},
		{"bad channel", "Tienda Alpha", api.ContactRequest{AdvisorName: "Ana", Channel: "fax"}, "422"},
		{"blank advisor", "Tienda Alpha", api.ContactRequest{AdvisorName: "  ", Channel: "Call"}, "advisor_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runLog(ctx, client, tt.ref, tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestResolveAdvisor(t *testing.T) {
	cfg := config.Config{}

	if _, err := resolveAdvisor("", cfg); !errors.Is(err, errNoAdvisor) {
		t.Fatalf("expected errNoAdvisor, got %v", err)
	}
	if _, err := resolveAdvisor("   ", cfg); !errors.Is(err, errNoAdvisor) {
		t.Fatalf("blank flag: expected errNoAdvisor, got %v", err)
	}

	cfg.Advisor.Name = "Luis"
	if got, _ := resolveAdvisor("", cfg); got != "Luis" {
		t.Errorf("configured advisor = %q, want Luis", got)
	}
	if got, _ := resolveAdvisor("Ana", cfg); got != "Ana" {
		t.Errorf("flag should win, got %q", got)
	}
}

func TestExportCommand(t *testing.T) {
	_, client := newTestServer(t)

	for _, ref := range []string{"Tienda Alpha", "Bazar Beta"} {
		if _, err := runLog(ctx, client, ref, api.ContactRequest{AdvisorName: "Ana", Channel: "Email", Date: "2026-03-14"}); err != nil {
			t.Fatalf("logging: %v", err)
		}
	}

	var out bytes.Buffer
	if err := runExport(ctx, client, report.FormatCSV, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected marker, header and 2 rows, got %d lines:\n%s", len(lines), out.String())
	}
	if lines[0] != contactlog.SchemaMarker {
		t.Errorf("first line = %q", lines[0])
	}

	out.Reset()
	if err := runExport(ctx, client, report.FormatJSONL, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := strings.Count(out.String(), "\n"); n != 2 {
		t.Errorf("jsonl lines = %d, want 2", n)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	srv, client := newTestServer(t)
	srv.Close()

	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestCountMerchants(t *testing.T) {
	_, client := newTestServer(t)

	n, err := countMerchants(ctx, client)
	if err != nil || n != 3 {
		t.Fatalf("countMerchants = %d, %v", n, err)
	}
}

func TestAPIClient_BadToken(t *testing.T) {
	_, client := newTestServer(t)
	client.token = "wrong"

	resp, err := client.get(ctx, "/merchants")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "bearer token") {
		t.Errorf("error = %q, want status and server message", err.Error())
	}
}

func TestCheckStatus_NonJSONBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err == nil || !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("checkStatus = %v", err)
	}
}

func TestMerchantPath(t *testing.T) {
	if got := merchantPath("Tienda Alpha"); got != "/merchants/Tienda%20Alpha" {
		t.Errorf("merchantPath = %q", got)
	}
}

func TestOpenStore(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendCSV, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Config{}
			cfg.Storage.Backend = backend
			cfg.Storage.DataDir = t.TempDir()

			store, err := openStore(cfg, nil)
			if err != nil {
				t.Fatalf("openStore: %v", err)
			}
			defer store.Close()

			if _, err := store.Append(contactlog.Entry{AdvisorName: "Ana", MerchantTaxID: 30712345678, Channel: contactlog.ChannelCall}); err != nil {
				t.Fatalf("append: %v", err)
			}
			if n, err := store.Len(); err != nil || n != 1 {
				t.Fatalf("Len = %d, %v", n, err)
			}

			switch backend {
			case config.BackendCSV:
				assertFile(t, filepath.Join(cfg.Storage.DataDir, csvLogFile))
			case config.BackendSQLite:
				assertFile(t, filepath.Join(cfg.Storage.DataDir, storage.DBFile))
			}
		})
	}

	cfg := config.Config{}
	cfg.Storage.Backend = "redis"
	if _, err := openStore(cfg, nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func assertFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(t.TempDir())
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid <= 0 {
		t.Errorf("pid = %d", pid)
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file still present after removal")
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestMessagesGoToMsgOut(t *testing.T) {
	oldOut, oldColor := msgOut, noColor
	defer func() { msgOut, noColor = oldOut, oldColor }()

	var buf bytes.Buffer
	msgOut = &buf
	noColor = true

	printSuccess("exported %d contacts", 3)
	printWarning("already running")
	printStatus("Backend", "%s", "csv")

	want := "✓ exported 3 contacts\n! already running\n  Backend: csv\n"
	if buf.String() != want {
		t.Errorf("messages = %q, want %q", buf.String(), want)
	}
}

func TestStatusColor(t *testing.T) {
	tests := map[portfolio.Status]string{
		portfolio.StatusAtRisk:    colorRed,
		portfolio.StatusPotential: colorCyan,
		portfolio.StatusStable:    colorGreen,
		portfolio.Status("Other"): colorYellow,
	}
	for status, want := range tests {
		if got := statusColor(status); got != want {
			t.Errorf("statusColor(%s) = %q, want %q", status, got, want)
		}
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4100
	cfg.Advisor.Name = "Ana"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "advisor.name" && k.Value == "Ana" && k.EnvVar == "ADVISORHUB_ADVISOR" {
			found = true
		}
	}
	if !found {
		t.Error("expected advisor.name=Ana in ShowAll output")
	}
}

func TestLogCommand_RequiresChannel(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"log", "Tienda Alpha", "--advisor", "Ana"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing --channel")
	}
	if !strings.Contains(err.Error(), "channel") {
		t.Errorf("error = %q, want it to mention channel", err.Error())
	}
}
