/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tejzpr/softphone-go/webapi"
)

func newTestServer(t *testing.T) (*Server, *webapi.Client) {
	t.Helper()
	srv, err := NewServer(&Config{
		DatabasePath: ":memory:",
		JWTSecret:    "test-secret",
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.store.Close()
	})

	client, err := webapi.NewClient(&webapi.Config{BaseURL: ts.URL + "/api"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return srv, client
}

func signUp(t *testing.T, client *webapi.Client, username string) *webapi.User {
	t.Helper()
	user, err := client.SignUp(context.Background(), username, "hunter22")
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	return user
}

func TestRegisterAndLogin(t *testing.T) {
	_, client := newTestServer(t)

	user := signUp(t, client, "alice")
	if user.ID == "" || user.Username != "alice" {
		t.Errorf("Unexpected user: %+v", user)
	}
	if client.Token() == "" {
		t.Error("SignUp should store a session token")
	}

	t.Run("DuplicateUsername", func(t *testing.T) {
		_, err := client.SignUp(context.Background(), "alice", "other")
		if !webapi.IsConflict(err) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	t.Run("LoginSuccess", func(t *testing.T) {
		client.Logout()
		got, err := client.Login(context.Background(), "alice", "hunter22")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("Expected user ID %s, got %s", user.ID, got.ID)
		}
		if client.UserID() != user.ID {
			t.Error("Client should store the user ID")
		}
	})

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := client.Login(context.Background(), "alice", "nope")
		if !webapi.IsAuthError(err) {
			t.Errorf("Expected auth error, got %v", err)
		}
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := client.Login(context.Background(), "mallory", "hunter22")
		if !webapi.IsAuthError(err) {
			t.Errorf("Expected auth error, got %v", err)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		_, err := client.Login(context.Background(), "", "")
		if err == nil {
			t.Error("Expected error for empty credentials")
		}
	})
}

func TestWebRTCConfigRoundTrip(t *testing.T) {
	_, client := newTestServer(t)
	signUp(t, client, "bob")

	t.Run("NotFoundBeforeSave", func(t *testing.T) {
		_, err := client.FetchWebRTCConfig(context.Background())
		if !webapi.IsNotFound(err) {
			t.Errorf("Expected not found, got %v", err)
		}
	})

	cfg := &webapi.WebRTCConfig{
		WebsocketURI: "wss://sip.example.com:7443",
		SIPUsername:  "1001",
		SIPPassword:  "pw",
		Realm:        "sip.example.com",
		DisplayName:  "Bob",
		STUNServers:  "stun:stun.example.com:3478",
	}
	saved, err := client.SaveWebRTCConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("SaveWebRTCConfig failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("Saved config should carry an ID")
	}

	fetched, err := client.FetchWebRTCConfig(context.Background())
	if err != nil {
		t.Fatalf("FetchWebRTCConfig failed: %v", err)
	}
	if fetched.WebsocketURI != cfg.WebsocketURI || fetched.SIPUsername != cfg.SIPUsername {
		t.Errorf("Fetched config mismatch: %+v", fetched)
	}
	if fetched.Realm != "sip.example.com" || fetched.DisplayName != "Bob" {
		t.Errorf("Fetched config mismatch: %+v", fetched)
	}

	t.Run("SaveReplacesExisting", func(t *testing.T) {
		cfg.DisplayName = "Robert"
		if _, err := client.SaveWebRTCConfig(context.Background(), cfg); err != nil {
			t.Fatalf("Second save failed: %v", err)
		}
		fetched, err := client.FetchWebRTCConfig(context.Background())
		if err != nil {
			t.Fatalf("FetchWebRTCConfig failed: %v", err)
		}
		if fetched.DisplayName != "Robert" {
			t.Errorf("Expected updated display name, got %s", fetched.DisplayName)
		}
	})

	t.Run("ConfigsAreScopedPerUser", func(t *testing.T) {
		_, other := newTestServerClientPair(t)
		signUp(t, other, "carol")
		if _, err := other.FetchWebRTCConfig(context.Background()); !webapi.IsNotFound(err) {
			t.Errorf("Carol should not see Bob's config, got %v", err)
		}
	})
}

// newTestServerClientPair returns a second client against its own server.
func newTestServerClientPair(t *testing.T) (*Server, *webapi.Client) {
	return newTestServer(t)
}

func TestSubmitCallStatistics(t *testing.T) {
	_, client := newTestServer(t)
	signUp(t, client, "dave")

	rec := &webapi.CallStatisticsRecord{
		CallID:          "call-abc",
		UserID:          client.UserID(),
		StartTime:       "2026-08-27T12:00:00Z",
		EndTime:         "2026-08-27T12:01:35Z",
		DurationSeconds: 95,
		StatsBlob:       map[string]any{"audio_rtp": map[string]any{"packetsReceived": float64(420)}},
	}

	if err := client.SubmitCallStatistics(context.Background(), rec); err != nil {
		t.Fatalf("SubmitCallStatistics failed: %v", err)
	}

	t.Run("DuplicateCallID", func(t *testing.T) {
		err := client.SubmitCallStatistics(context.Background(), rec)
		if !webapi.IsConflict(err) {
			t.Errorf("Expected conflict on duplicate call_id, got %v", err)
		}
	})

	t.Run("MissingTimes", func(t *testing.T) {
		err := client.SubmitCallStatistics(context.Background(), &webapi.CallStatisticsRecord{
			CallID: "call-def",
		})
		if !webapi.IsBadRequest(err) {
			t.Errorf("Expected bad request, got %v", err)
		}
	})

	t.Run("ForeignUserID", func(t *testing.T) {
		err := client.SubmitCallStatistics(context.Background(), &webapi.CallStatisticsRecord{
			CallID:    "call-ghi",
			UserID:    "someone-else",
			StartTime: "2026-08-27T12:00:00Z",
			EndTime:   "2026-08-27T12:00:30Z",
		})
		if !webapi.IsForbidden(err) {
			t.Errorf("Expected forbidden, got %v", err)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	srv, client := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	get := func(t *testing.T, auth string) int {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/webrtc/config", nil)
		if err != nil {
			t.Fatal(err)
		}
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	t.Run("MissingToken", func(t *testing.T) {
		if code := get(t, ""); code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", code)
		}
	})

	t.Run("MalformedHeader", func(t *testing.T) {
		if code := get(t, "Token abc"); code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", code)
		}
	})

	t.Run("GarbageToken", func(t *testing.T) {
		if code := get(t, "Bearer not-a-jwt"); code != http.StatusUnauthorized {
			t.Errorf("Expected 401, got %d", code)
		}
	})

	t.Run("ValidToken", func(t *testing.T) {
		signUp(t, client, "erin")
		// A valid token reaches the handler; 404 means no config saved.
		if code := get(t, "Bearer "+client.Token()); code != http.StatusNotFound {
			t.Errorf("Expected 404 past the middleware, got %d", code)
		}
	})
}

func TestTokenManager(t *testing.T) {
	m := NewTokenManager([]byte("secret-1"))

	token, err := m.Generate("u-1", "alice")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.UserID != "u-1" || claims.Username != "alice" {
		t.Errorf("Unexpected claims: %+v", claims)
	}
	if claims.ExpiresAt == nil || time.Until(claims.ExpiresAt.Time) > tokenTTL {
		t.Error("Token should expire within the TTL")
	}

	t.Run("WrongSecret", func(t *testing.T) {
		other := NewTokenManager([]byte("secret-2"))
		if _, err := other.Parse(token); err == nil {
			t.Error("Token signed with another secret should be rejected")
		}
	})

	t.Run("WrongAlgorithm", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u-1"})
		raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Parse(raw); err == nil {
			t.Error("Unsigned token should be rejected")
		}
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "hunter22" {
		t.Error("Hash should not equal the plaintext")
	}
	if !CheckPassword(hash, "hunter22") {
		t.Error("Correct password should verify")
	}
	if CheckPassword(hash, "hunter23") {
		t.Error("Wrong password should not verify")
	}
}

func TestStoreDuplicateCallID(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer store.Close()

	user, err := store.CreateUser(context.Background(), "frank", "hash")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	rec := &StoredCallStats{
		CallID:          "c-1",
		UserID:          user.ID,
		StartTime:       "2026-08-27T12:00:00Z",
		EndTime:         "2026-08-27T12:00:30Z",
		DurationSeconds: 30,
	}
	if err := store.InsertCallStats(context.Background(), rec); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	dup := &StoredCallStats{
		CallID:    "c-1",
		UserID:    user.ID,
		StartTime: "2026-08-27T13:00:00Z",
		EndTime:   "2026-08-27T13:00:30Z",
	}
	if err := store.InsertCallStats(context.Background(), dup); err != ErrDuplicate {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	list, err := store.CallStatsByUserID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("CallStatsByUserID failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("Expected 1 record, got %d", len(list))
	}
}
