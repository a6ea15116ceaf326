/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package signaling defines the seam between the call state machine and
// the SIP/WebRTC plumbing, plus the sipgo/pion implementation of it.
package signaling

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Config carries everything an engine needs to register a user agent.
type Config struct {
	// WebsocketURI is the SIP-over-WebSocket endpoint, e.g.
	// "wss://sip.example.com:7443".
	WebsocketURI string

	// SIPUsername is the authorization and address-of-record user part.
	SIPUsername string

	// SIPPassword is the plain digest password. Ignored when HA1Password
	// is set.
	SIPPassword string

	// HA1Password is the precomputed digest HA1, preferred over
	// SIPPassword when present.
	HA1Password string

	// Realm is the SIP domain used for the address of record and as the
	// registrar host.
	Realm string

	// DisplayName is the caller name presented to remote parties.
	// Defaults to SIPUsername.
	DisplayName string

	// UDPServerAddress optionally overrides the registrar transport
	// address for deployments that front the websocket edge with UDP.
	UDPServerAddress string

	// ICEServers is the STUN/TURN list handed to each call's peer
	// connection.
	ICEServers []webrtc.ICEServer
}

// Engine is the signaling user agent. One engine serves one registration;
// the owner creates a fresh engine per Initialize cycle.
//
// All handler hooks must be set before Start. Hooks are invoked from the
// engine's own goroutines; the owner is responsible for its own locking.
type Engine interface {
	// Start connects the transport and registers. It returns once the
	// registration attempt has been dispatched; outcome is reported via
	// the handler hooks.
	Start(ctx context.Context) error

	// Stop unregisters (best effort) and tears down the transport.
	// Safe to call more than once.
	Stop() error

	// Originate places an outbound call to the target SIP URI and
	// returns the pending session. The returned session reports progress
	// through its own hooks.
	Originate(ctx context.Context, target string) (Session, error)

	OnConnected(func())
	OnDisconnected(func())
	OnRegistered(func())
	OnUnregistered(func(cause string))
	OnRegistrationFailed(func(cause string))
	OnInboundSession(func(Session))
}

// Session is one call leg. Hooks fire from engine goroutines.
type Session interface {
	// Answer accepts an inbound session.
	Answer() error

	// Terminate ends the session from either phase; the Ended or Failed
	// hook still fires afterwards to drive cleanup.
	Terminate() error

	Mute() error
	Unmute() error

	// Hold and Unhold renegotiate media direction. done is invoked with
	// the outcome once the far end has answered the renegotiation.
	Hold(done func(error))
	Unhold(done func(error))

	RemoteURI() string
	RemoteDisplayName() string

	// AutoAnswer reports whether the inbound request asked to be
	// answered automatically.
	AutoAnswer() bool

	// StatsSnapshot returns the peer connection's current stats keyed by
	// report ID.
	StatsSnapshot() (map[string]any, error)

	OnProgress(func())
	OnAccepted(func())
	OnConfirmed(func())
	OnEnded(func())
	OnFailed(func(cause string))
	OnRemoteTrack(func(track *webrtc.TrackRemote))
}
