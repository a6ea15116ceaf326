/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{BaseURL: server.URL + "/api"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, server
}

func TestNewClient(t *testing.T) {
	t.Run("EmptyBaseURL", func(t *testing.T) {
		_, err := NewClient(&Config{})
		if err == nil {
			t.Error("Expected error for empty base URL")
		}
	})

	t.Run("NilConfigUsesDefaults", func(t *testing.T) {
		client, err := NewClient(nil)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.Config.BaseURL != DefaultConfig().BaseURL {
			t.Errorf("Expected default base URL, got %s", client.Config.BaseURL)
		}
		if client.GetLogger() == nil {
			t.Error("Expected default logger to be set")
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/auth/login" {
				t.Errorf("Unexpected path: %s", r.URL.Path)
			}
			var creds map[string]string
			json.NewDecoder(r.Body).Decode(&creds)
			if creds["username"] != "alice" || creds["password"] != "secret" {
				t.Errorf("Unexpected credentials: %v", creds)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"message": "Login successful",
				"token":   "test-token",
				"user":    map[string]string{"id": "user-1", "username": "alice"},
			})
		}))

		user, err := client.Login(context.Background(), "alice", "secret")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if user.ID != "user-1" {
			t.Errorf("Expected user ID user-1, got %s", user.ID)
		}
		if client.Token() != "test-token" {
			t.Errorf("Expected token to be stored, got %q", client.Token())
		}
		if client.UserID() != "user-1" {
			t.Errorf("Expected user ID to be stored, got %q", client.UserID())
		}
	})

	t.Run("InvalidCredentials", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "Invalid credentials"})
		}))

		_, err := client.Login(context.Background(), "alice", "wrong")
		if err == nil {
			t.Fatal("Expected error for invalid credentials")
		}
		if !IsAuthError(err) {
			t.Errorf("Expected AuthError, got %T: %v", err, err)
		}
		if client.Token() != "" {
			t.Error("Token should not be stored on failed login")
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Request should not reach the server")
		}))

		if _, err := client.Login(context.Background(), "", "secret"); err == nil {
			t.Error("Expected error for empty username")
		}
	})
}

func TestSignUp(t *testing.T) {
	t.Run("DuplicateUsername", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"message": "Username already exists"})
		}))

		_, err := client.SignUp(context.Background(), "alice", "secret")
		if !IsConflict(err) {
			t.Errorf("Expected ConflictError, got %T: %v", err, err)
		}
	})
}

func TestTokenAccessors(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"token": "tok-1",
			"user":  map[string]string{"id": "u-1", "username": "alice"},
		})
	}))

	tokenFn := client.TokenFunc()
	userFn := client.UserIDFunc()

	if tokenFn() != "" || userFn() != "" {
		t.Error("Accessors should be empty before login")
	}

	if _, err := client.Login(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if tokenFn() != "tok-1" || userFn() != "u-1" {
		t.Error("Accessors should see the logged-in session")
	}

	client.Logout()
	if tokenFn() != "" || userFn() != "" {
		t.Error("Accessors should see the cleared session after logout")
	}
}

func TestFetchWebRTCConfig(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/webrtc/config" {
				t.Errorf("Unexpected path: %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("Expected bearer token, got %q", got)
			}
			json.NewEncoder(w).Encode(&WebRTCConfig{
				WebsocketURI: "wss://sip.example.com:7443",
				SIPUsername:  "1001",
				Realm:        "sip.example.com",
				STUNServers:  "stun:stun.example.com:3478",
			})
		}))
		client.setSession("tok-1", User{ID: "u-1", Username: "alice"})

		cfg, err := client.FetchWebRTCConfig(context.Background())
		if err != nil {
			t.Fatalf("FetchWebRTCConfig failed: %v", err)
		}
		if cfg.SIPUsername != "1001" {
			t.Errorf("Expected SIP username 1001, got %s", cfg.SIPUsername)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "WebRTC configuration not found for this user"})
		}))

		_, err := client.FetchWebRTCConfig(context.Background())
		if !IsNotFound(err) {
			t.Errorf("Expected NotFoundError, got %T: %v", err, err)
		}
	})
}

func TestSaveWebRTCConfig(t *testing.T) {
	t.Run("MissingRequiredFields", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Request should not reach the server")
		}))

		_, err := client.SaveWebRTCConfig(context.Background(), &WebRTCConfig{SIPUsername: "1001"})
		if err == nil {
			t.Error("Expected error for missing websocket_uri")
		}
	})

	t.Run("Success", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var cfg WebRTCConfig
			json.NewDecoder(r.Body).Decode(&cfg)
			cfg.ID = "cfg-1"
			json.NewEncoder(w).Encode(map[string]any{
				"message":       "WebRTC configuration updated successfully",
				"configuration": cfg,
			})
		}))

		saved, err := client.SaveWebRTCConfig(context.Background(), &WebRTCConfig{
			WebsocketURI: "wss://sip.example.com:7443",
			SIPUsername:  "1001",
			SIPPassword:  "pw",
		})
		if err != nil {
			t.Fatalf("SaveWebRTCConfig failed: %v", err)
		}
		if saved.ID != "cfg-1" {
			t.Errorf("Expected saved config ID cfg-1, got %s", saved.ID)
		}
	})
}

func TestSubmitCallStatistics(t *testing.T) {
	record := &CallStatisticsRecord{
		CallID:          "call-1",
		UserID:          "u-1",
		StartTime:       "2026-08-27T10:00:00Z",
		EndTime:         "2026-08-27T10:01:30Z",
		DurationSeconds: 90,
		StatsBlob:       map[string]any{"note": "test"},
	}

	t.Run("Created", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var rec CallStatisticsRecord
			json.NewDecoder(r.Body).Decode(&rec)
			if rec.CallID != "call-1" || rec.DurationSeconds != 90 {
				t.Errorf("Unexpected record: %+v", rec)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"message": "Call statistics saved successfully"})
		}))

		if err := client.SubmitCallStatistics(context.Background(), record); err != nil {
			t.Fatalf("SubmitCallStatistics failed: %v", err)
		}
	})

	t.Run("DuplicateCallID", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"message": "Conflict: Call with call_id 'call-1' already exists."})
		}))

		err := client.SubmitCallStatistics(context.Background(), record)
		if !IsConflict(err) {
			t.Errorf("Expected ConflictError, got %T: %v", err, err)
		}
	})

	t.Run("MissingCallID", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Request should not reach the server")
		}))

		if err := client.SubmitCallStatistics(context.Background(), &CallStatisticsRecord{}); err == nil {
			t.Error("Expected error for missing call_id")
		}
	})
}

func TestErrorTypes(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"BadRequest", http.StatusBadRequest, IsBadRequest},
		{"Auth", http.StatusUnauthorized, IsAuthError},
		{"Forbidden", http.StatusForbidden, IsForbidden},
		{"NotFound", http.StatusNotFound, IsNotFound},
		{"Conflict", http.StatusConflict, IsConflict},
		{"Server", http.StatusInternalServerError, IsServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				json.NewEncoder(w).Encode(map[string]string{"message": "nope"})
			}))

			_, err := client.FetchWebRTCConfig(context.Background())
			if err == nil {
				t.Fatal("Expected error")
			}
			if !tc.check(err) {
				t.Errorf("Wrong error type for status %d: %T", tc.status, err)
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected APIError access via errors.As, got %T", err)
			}
			if apiErr.StatusCode != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, apiErr.StatusCode)
			}
			if apiErr.Message != "nope" {
				t.Errorf("Expected message to be parsed, got %q", apiErr.Message)
			}
		})
	}
}
