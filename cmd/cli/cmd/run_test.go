package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"testplane/pkg/api"
)

func TestRunCommand_Success(t *testing.T) {
	var got api.CreateRunRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/runs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		writeJSON(w, http.StatusAccepted, api.RunResponse{ID: 21, PlanProposalID: 12, Status: "queued"})
	}))
	defer server.Close()

	out, err := execute(t, server.URL, "run", "12",
		"--site", "https://staging.example.com",
		"--browser", "firefox",
		"--headed",
		"--timeout-ms", "5000",
		"-p", "user=alice",
		"-p", "pass=a=b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Run 21 queued") {
		t.Errorf("unexpected output: %s", out)
	}

	if got.PlanProposalID != 12 || got.SiteDomain != "https://staging.example.com" || got.Browser != "firefox" || got.TimeoutMS != 5000 {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Headless == nil || *got.Headless {
		t.Errorf("--headed should send headless=false, got %v", got.Headless)
	}
	want := map[string]string{"user": "alice", "pass": "a=b"}
	if !reflect.DeepEqual(got.Placeholders, want) {
		t.Errorf("placeholders = %v, want %v", got.Placeholders, want)
	}
}

func TestRunCommand_Defaults(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		writeJSON(w, http.StatusAccepted, api.RunResponse{ID: 21, Status: "queued"})
	}))
	defer server.Close()

	if _, err := execute(t, server.URL, "run", "12", "--site", "https://example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw["browser"] != "chromium" || raw["headless"] != true {
		t.Errorf("unexpected defaults %v", raw)
	}
	if _, ok := raw["placeholders"]; ok {
		t.Errorf("placeholders should be omitted, got %v", raw["placeholders"])
	}
}

func TestRunCommand_Wait(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusAccepted, api.RunResponse{ID: 21, Status: "queued"})
			return
		}
		writeJSON(w, http.StatusOK, api.RunResponse{
			ID:         21,
			Status:     "passed",
			SiteDomain: "https://example.com",
			Browser:    "chromium",
			Headless:   true,
			Result: &api.RunResult{
				FinalURL:           "https://example.com/home",
				ExecutedSteps:      []string{"await page.goto('/home')"},
				ExecutedAssertions: []string{"await expect(page).toHaveURL('/home')"},
			},
		})
	}))
	defer server.Close()

	out, err := execute(t, server.URL, "run", "12", "--site", "https://example.com", "--wait", "--interval", "10ms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"passed", "https://example.com/home", "await page.goto('/home')"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestRunCommand_Validation(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	out, _ := execute(t, server.URL, "run", "12")
	if !strings.Contains(out, "--site is required") {
		t.Errorf("expected site error, got: %s", out)
	}
	out, _ = execute(t, server.URL, "run", "12", "--site", "https://example.com", "-p", "novalue")
	if !strings.Contains(out, "must be key=value") {
		t.Errorf("expected param error, got: %s", out)
	}
	if called {
		t.Error("no request should be sent")
	}
}

func TestRunCommand_NotReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: "Proposal is not ready for test", Code: "409"})
	}))
	defer server.Close()

	out, _ := execute(t, server.URL, "run", "12", "--site", "https://example.com")
	if !strings.Contains(out, "Error (409): Proposal is not ready for test") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestRunCommand_RequiresProposalIDArgument(t *testing.T) {
	if _, err := execute(t, "http://unused", "run"); err == nil {
		t.Error("expected error when proposal id is missing")
	}
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"a=1", " b =two=2", "empty="})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"a": "1", "b": "two=2", "empty": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if got, err := parseParams(nil); err != nil || got != nil {
		t.Errorf("nil input: got %v, %v", got, err)
	}
	if _, err := parseParams([]string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}
