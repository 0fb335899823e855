package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"testplane/internal/store"
	"testplane/pkg/api"
)

func TestCreateTestCase(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		mockSetup      func(*mockStore)
		expectedStatus int
	}{
		{
			name:           "Success",
			body:           `{"title":"login","nl_text":"Open the login page and sign in"}`,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Invalid JSON",
			body:           `{"title":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing NL text",
			body:           `{"title":"login","nl_text":"   "}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing title",
			body:           `{"nl_text":"do something"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Store failure",
			body:           `{"title":"login","nl_text":"sign in"}`,
			mockSetup:      func(m *mockStore) { m.createTestCaseErr = errors.New("db down") },
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockStore{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}
			h, _, _ := newTestHandlers(mock)

			req := httptest.NewRequest(http.MethodPost, "/test-cases", bytes.NewBufferString(tt.body))
			rr := httptest.NewRecorder()
			h.CreateTestCase(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("got status %d, want %d (body %s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if tt.expectedStatus != http.StatusCreated {
				var e api.ErrorResponse
				if err := json.NewDecoder(rr.Body).Decode(&e); err != nil || e.Error == "" {
					t.Errorf("expected error body, got %q", rr.Body.String())
				}
				return
			}

			var resp api.CreateTestCaseResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.TestCaseID != 3 || resp.RevisionID != 9 {
				t.Errorf("got %+v, want test case 3 revision 9", resp)
			}
			if mock.capturedTitle != "login" || mock.capturedNLText != "Open the login page and sign in" {
				t.Errorf("store got title=%q nl=%q", mock.capturedTitle, mock.capturedNLText)
			}
		})
	}
}

func TestAddRevision(t *testing.T) {
	tests := []struct {
		name           string
		pathID         string
		body           string
		mockSetup      func(*mockStore)
		expectedStatus int
	}{
		{name: "Success", pathID: "3", body: `{"nl_text":"Sign in with SSO"}`, expectedStatus: http.StatusCreated},
		{name: "Bad ID", pathID: "abc", body: `{"nl_text":"x"}`, expectedStatus: http.StatusBadRequest},
		{name: "Empty text", pathID: "3", body: `{"nl_text":""}`, expectedStatus: http.StatusBadRequest},
		{name: "Invalid JSON", pathID: "3", body: `nope`, expectedStatus: http.StatusBadRequest},
		{
			name:           "Unknown test case",
			pathID:         "404",
			body:           `{"nl_text":"x"}`,
			mockSetup:      func(m *mockStore) { m.addRevisionErr = store.ErrNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "Store failure",
			pathID:         "3",
			body:           `{"nl_text":"x"}`,
			mockSetup:      func(m *mockStore) { m.addRevisionErr = errors.New("db down") },
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockStore{}
			if tt.mockSetup != nil {
				tt.mockSetup(mock)
			}
			h, _, _ := newTestHandlers(mock)

			req := httptest.NewRequest(http.MethodPost, "/test-cases/"+tt.pathID+"/revisions", bytes.NewBufferString(tt.body))
			req.SetPathValue("id", tt.pathID)
			rr := httptest.NewRecorder()
			h.AddRevision(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("got status %d, want %d (body %s)", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if rr.Code != http.StatusCreated {
				return
			}
			var resp api.CreateTestCaseResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.TestCaseID != 3 || resp.RevisionID != 10 {
				t.Errorf("got %+v, want test case 3 revision 10", resp)
			}
		})
	}
}
