/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package softphone

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/tejzpr/softphone-go/phone"
	"github.com/tejzpr/softphone-go/server"
	"github.com/tejzpr/softphone-go/signaling"
	"github.com/tejzpr/softphone-go/webapi"
)

// stubEngine satisfies the signaling engine without any network.
type stubEngine struct {
	onRegistered func()
	stopped      bool
}

func (e *stubEngine) Start(ctx context.Context) error {
	if e.onRegistered != nil {
		e.onRegistered()
	}
	return nil
}

func (e *stubEngine) Stop() error {
	e.stopped = true
	return nil
}

func (e *stubEngine) Originate(ctx context.Context, target string) (signaling.Session, error) {
	return nil, context.Canceled
}

func (e *stubEngine) OnConnected(func())                  {}
func (e *stubEngine) OnDisconnected(func())               {}
func (e *stubEngine) OnRegistered(fn func())              { e.onRegistered = fn }
func (e *stubEngine) OnUnregistered(func(string))         {}
func (e *stubEngine) OnRegistrationFailed(func(string))   {}
func (e *stubEngine) OnInboundSession(func(signaling.Session)) {}

func newBackend(t *testing.T) string {
	t.Helper()
	srv, err := server.NewServer(&server.Config{
		DatabasePath: ":memory:",
		JWTSecret:    "test-secret",
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL + "/api"
}

func TestPhoneReturnsSingleton(t *testing.T) {
	client, err := NewClient(nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	first := client.Phone()
	if first == nil {
		t.Fatal("Expected a phone instance")
	}
	if second := client.Phone(); second != first {
		t.Error("Expected repeated Phone() calls to return the same instance")
	}
}

func TestConnect(t *testing.T) {
	baseURL := newBackend(t)

	t.Run("LoginFailure", func(t *testing.T) {
		client, err := NewClient(&webapi.Config{BaseURL: baseURL}, nil)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if err := client.Connect(context.Background(), "ghost", "pw"); !webapi.IsAuthError(err) {
			t.Errorf("Expected auth error, got %v", err)
		}
	})

	t.Run("MissingConfiguration", func(t *testing.T) {
		client, err := NewClient(&webapi.Config{BaseURL: baseURL}, nil)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if _, err := client.API().SignUp(context.Background(), "alice", "pw"); err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		if err := client.Connect(context.Background(), "alice", "pw"); !webapi.IsNotFound(err) {
			t.Errorf("Expected not-found error, got %v", err)
		}
	})

	t.Run("Success", func(t *testing.T) {
		engine := &stubEngine{}
		client, err := NewClient(&webapi.Config{BaseURL: baseURL}, &phone.Options{
			EngineFactory: func(cfg signaling.Config, logger phone.Logger) (signaling.Engine, error) {
				return engine, nil
			},
		})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		if _, err := client.API().SignUp(context.Background(), "bob", "pw"); err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		if _, err := client.API().SaveWebRTCConfig(context.Background(), &webapi.WebRTCConfig{
			WebsocketURI: "wss://sip.example.com:7443",
			SIPUsername:  "1001",
			SIPPassword:  "pw",
			Realm:        "sip.example.com",
		}); err != nil {
			t.Fatalf("SaveWebRTCConfig failed: %v", err)
		}

		if err := client.Connect(context.Background(), "bob", "pw"); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		if !client.Phone().IsRegistered() {
			t.Error("Phone should be registered after Connect")
		}

		client.Disconnect()
		if !engine.stopped {
			t.Error("Disconnect should stop the engine")
		}
		if client.API().Token() != "" {
			t.Error("Disconnect should clear the session token")
		}
	})
}
