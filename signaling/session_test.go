/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"testing"
)

func TestTerminateBeforeDialogCancelsInvite(t *testing.T) {
	engine := &SIPEngine{sessions: make(map[string]*sipSession)}

	cancelled := 0
	ended := 0
	sess := &sipSession{
		engine:       engine,
		cancelInvite: func() { cancelled++ },
	}
	sess.OnEnded(func() { ended++ })

	if err := sess.Terminate(); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if cancelled != 1 {
		t.Errorf("Expected the invite context cancelled once, got %d", cancelled)
	}
	// The dial goroutine owns the terminal hook on this path; Terminate
	// itself must not fire it.
	if ended != 0 {
		t.Errorf("Terminate should not fire the terminal hook directly, got %d", ended)
	}

	// Idempotent: a second terminate does nothing.
	if err := sess.Terminate(); err != nil {
		t.Fatalf("Second terminate failed: %v", err)
	}
	if cancelled != 1 {
		t.Errorf("Second terminate should not cancel again, got %d", cancelled)
	}
}

func TestTerminalHookLatch(t *testing.T) {
	engine := &SIPEngine{sessions: make(map[string]*sipSession)}

	ended := 0
	failed := 0
	sess := &sipSession{engine: engine}
	sess.OnEnded(func() { ended++ })
	sess.OnFailed(func(string) { failed++ })

	sess.fireEnded()
	sess.fireEnded()
	sess.fireFailed("late failure")

	if ended != 1 {
		t.Errorf("Expected exactly 1 ended hook, got %d", ended)
	}
	if failed != 0 {
		t.Errorf("Failed hook should be latched out after ended, got %d", failed)
	}
}
