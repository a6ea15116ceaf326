/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package phone holds the registration and call-session state machine:
// user-agent connectivity, call phase transitions, auto-answer
// arbitration, ring indication, and post-call statistics capture.
package phone

import "sync"

// ---- State Enums ----

// CallPhase represents where the current call sits in its lifecycle.
type CallPhase string

const (
	CallPhaseIdle             CallPhase = "idle"
	CallPhaseIncoming         CallPhase = "incoming"
	CallPhaseOutgoing         CallPhase = "outgoing"
	CallPhaseOutgoingProgress CallPhase = "outgoing_progress"
	CallPhaseActive           CallPhase = "active"
)

// ConnectivityStatus represents the signaling transport state.
type ConnectivityStatus string

const (
	ConnectivityDisconnected ConnectivityStatus = "disconnected"
	ConnectivityConnecting   ConnectivityStatus = "connecting"
	ConnectivityConnected    ConnectivityStatus = "connected"
)

// RegistrationStatus represents the user agent's registrar state.
// Registered is only reachable after the transport is connected.
type RegistrationStatus string

const (
	RegistrationUnregistered RegistrationStatus = "unregistered"
	RegistrationRegistering  RegistrationStatus = "registering"
	RegistrationRegistered   RegistrationStatus = "registered"
	RegistrationFailed       RegistrationStatus = "failed"
)

// PhoneEventKey identifies the type of phone event
type PhoneEventKey string

const (
	EventConnected          PhoneEventKey = "connected"
	EventDisconnected       PhoneEventKey = "disconnected"
	EventRegistered         PhoneEventKey = "registered"
	EventUnregistered       PhoneEventKey = "unregistered"
	EventRegistrationFailed PhoneEventKey = "registration_failed"
	EventIncomingCall       PhoneEventKey = "incoming_call"
	EventCallPhaseChanged   PhoneEventKey = "call_phase_changed"
	EventCallEnded          PhoneEventKey = "call_ended"
	EventMuteChanged        PhoneEventKey = "mute_changed"
	EventHoldChanged        PhoneEventKey = "hold_changed"
)

// IncomingCallInfo carries the remote identity of a ringing inbound call.
type IncomingCallInfo struct {
	URI         string
	DisplayName string
	AutoAnswer  bool
}

// ---- Event Emitter ----

// EventHandler is a callback function for events
type EventHandler func(data interface{})

// EventEmitter provides a simple event pub/sub system
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

// NewEventEmitter creates a new EventEmitter
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[string][]EventHandler),
	}
}

// On registers an event handler for a specific event type
func (e *EventEmitter) On(event string, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Off removes all handlers for a specific event type
func (e *EventEmitter) Off(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Emit fires an event, calling all registered handlers
func (e *EventEmitter) Emit(event string, data interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
