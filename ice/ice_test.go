/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package ice

import (
	"testing"
)

func TestResolve(t *testing.T) {
	t.Run("StunAndTurnWithCredentials", func(t *testing.T) {
		servers := Resolve(
			"stun:stun1.example.com, stun:stun2.example.com",
			"turn:alice:secret@turn.example.com:3478",
		)
		if len(servers) != 3 {
			t.Fatalf("Expected 3 servers, got %d", len(servers))
		}
		if servers[0].URLs[0] != "stun:stun1.example.com" {
			t.Errorf("Unexpected first STUN URL: %s", servers[0].URLs[0])
		}
		if servers[1].URLs[0] != "stun:stun2.example.com" {
			t.Errorf("Unexpected second STUN URL: %s", servers[1].URLs[0])
		}
		turn := servers[2]
		if turn.URLs[0] != "turn:turn.example.com:3478" {
			t.Errorf("Expected credentials stripped from TURN URL, got %s", turn.URLs[0])
		}
		if turn.Username != "alice" {
			t.Errorf("Expected username alice, got %q", turn.Username)
		}
		if turn.Credential != "secret" {
			t.Errorf("Expected credential secret, got %v", turn.Credential)
		}
	})

	t.Run("SchemelessTurnWithCredentials", func(t *testing.T) {
		servers := Resolve("", "user:pass@turn.example:3478")
		if len(servers) != 1 {
			t.Fatalf("Expected 1 server, got %d", len(servers))
		}
		turn := servers[0]
		if turn.URLs[0] != "turn:turn.example:3478" {
			t.Errorf("Unexpected TURN URL: %s", turn.URLs[0])
		}
		if turn.Username != "user" {
			t.Errorf("Expected username user, got %q", turn.Username)
		}
		if turn.Credential != "pass" {
			t.Errorf("Expected credential pass, got %v", turn.Credential)
		}
	})

	t.Run("TurnsSchemeKept", func(t *testing.T) {
		servers := Resolve("", "turns:alice:secret@turn.example.com:5349")
		if len(servers) != 1 {
			t.Fatalf("Expected 1 server, got %d", len(servers))
		}
		turn := servers[0]
		if turn.URLs[0] != "turns:turn.example.com:5349" {
			t.Errorf("Unexpected TURN URL: %s", turn.URLs[0])
		}
		if turn.Username != "alice" || turn.Credential != "secret" {
			t.Errorf("Unexpected credentials: %q / %v", turn.Username, turn.Credential)
		}
	})

	t.Run("TurnWithoutCredentials", func(t *testing.T) {
		servers := Resolve("", "turn:turn.example.com:3478")
		if len(servers) != 1 {
			t.Fatalf("Expected 1 server, got %d", len(servers))
		}
		if servers[0].URLs[0] != "turn:turn.example.com:3478" {
			t.Errorf("Unexpected TURN URL: %s", servers[0].URLs[0])
		}
		if servers[0].Username != "" || servers[0].Credential != nil {
			t.Errorf("Expected no credentials, got %q / %v", servers[0].Username, servers[0].Credential)
		}
	})

	t.Run("TurnUsernameOnly", func(t *testing.T) {
		servers := Resolve("", "turn:alice@turn.example.com")
		if len(servers) != 1 {
			t.Fatalf("Expected 1 server, got %d", len(servers))
		}
		if servers[0].Username != "alice" {
			t.Errorf("Expected username alice, got %q", servers[0].Username)
		}
		if servers[0].Credential != nil {
			t.Errorf("Expected no credential, got %v", servers[0].Credential)
		}
		if servers[0].URLs[0] != "turn:turn.example.com" {
			t.Errorf("Unexpected TURN URL: %s", servers[0].URLs[0])
		}
	})

	t.Run("EmptyInputs", func(t *testing.T) {
		servers := Resolve("", "")
		if len(servers) != 0 {
			t.Errorf("Expected empty slice, got %d servers", len(servers))
		}
	})

	t.Run("BlankEntriesSkipped", func(t *testing.T) {
		servers := Resolve("stun:stun.example.com, , ", " ,turn:turn.example.com")
		if len(servers) != 2 {
			t.Fatalf("Expected 2 servers, got %d", len(servers))
		}
	})
}

func TestDefaultServers(t *testing.T) {
	servers := DefaultServers()
	if len(servers) != 1 {
		t.Fatalf("Expected 1 default server, got %d", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("Unexpected default STUN URL: %s", servers[0].URLs[0])
	}
}
