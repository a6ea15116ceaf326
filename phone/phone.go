/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package phone

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/tejzpr/softphone-go/ice"
	"github.com/tejzpr/softphone-go/signaling"
	"github.com/tejzpr/softphone-go/webapi"
)

// Logger matches the stdlib log.Printf shape.
type Logger interface {
	Printf(format string, v ...any)
}

// Errors returned synchronously from user call actions.
var (
	ErrNotRegistered  = errors.New("phone is not registered")
	ErrInvalidTarget  = errors.New("target URI is required")
	ErrCallInProgress = errors.New("a call is already in progress")
)

// defaultAutoAnswerDelay is the grace period between an auto-answer
// request arriving and the answer being placed.
const defaultAutoAnswerDelay = 2 * time.Second

// Config carries the signaling configuration for one Initialize cycle.
type Config struct {
	WebsocketURI     string
	SIPUsername      string
	SIPPassword      string
	HA1Password      string
	Realm            string
	DisplayName      string
	UDPServerAddress string

	// STUNServers and TURNServers are the backend's comma-separated
	// server lists, resolved through the ice package.
	STUNServers string
	TURNServers string

	// AutoAnswerDelay overrides the auto-answer grace period. Zero means
	// the 2 second default.
	AutoAnswerDelay time.Duration
}

// ConfigFromWebRTC maps the backend's stored configuration onto a phone
// config.
func ConfigFromWebRTC(cfg *webapi.WebRTCConfig) *Config {
	if cfg == nil {
		return nil
	}
	return &Config{
		WebsocketURI:     cfg.WebsocketURI,
		SIPUsername:      cfg.SIPUsername,
		SIPPassword:      cfg.SIPPassword,
		HA1Password:      cfg.HA1Password,
		Realm:            cfg.Realm,
		DisplayName:      cfg.DisplayName,
		UDPServerAddress: cfg.UDPServerAddress,
		STUNServers:      cfg.STUNServers,
		TURNServers:      cfg.TURNServers,
	}
}

// AuthAccessors supplies live credential reads for statistics submission.
// Both must be set; they are funcs, not copied values, so a report
// assembled during teardown still sees the current auth state.
type AuthAccessors struct {
	Token  func() string
	UserID func() string
}

// AudioSink receives the remote audio track when a call becomes active
// and is cleared when the call ends.
type AudioSink interface {
	SetTrack(track *webrtc.TrackRemote)
	Clear()
}

// EngineFactory builds a signaling engine for one registration cycle.
type EngineFactory func(cfg signaling.Config, logger Logger) (signaling.Engine, error)

// Options configures a Phone.
type Options struct {
	// Logger for phone operations. Nil uses log.Default().
	Logger Logger

	// EngineFactory overrides engine construction; nil uses the sipgo
	// engine.
	EngineFactory EngineFactory

	// RingCue overrides the ring cue construction; nil uses the
	// generated tone.
	RingCue func() CuePlayer

	// StatsSubmitter posts call statistics records. Nil disables
	// submission (reports are logged and dropped).
	StatsSubmitter StatsSubmitter
}

// Phone is the registration supervisor and call session controller. It
// owns the engine lifecycle, tracks connectivity and registration state,
// mediates call phase transitions, and triggers post-call statistics
// capture exactly once per call.
//
// All state is guarded by one mutex; engine callbacks, user actions, and
// timer firings serialize through it. Events are emitted after the lock
// is released so subscribers may call back into the phone.
type Phone struct {
	// Events is the subscription surface for UI layers.
	Events *EventEmitter

	logger    Logger
	newEngine EngineFactory
	ring      *RingIndicator
	stats     *StatisticsReporter

	mu              sync.Mutex
	engine          signaling.Engine
	connectivity    ConnectivityStatus
	registration    RegistrationStatus
	regError        string
	token           func() string
	userID          func() string
	call            *callState
	sink            AudioSink
	autoAnswerDelay time.Duration
}

// New creates a Phone. It is idle until Initialize.
func New(opts *Options) *Phone {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	newEngine := opts.EngineFactory
	if newEngine == nil {
		newEngine = func(cfg signaling.Config, logger Logger) (signaling.Engine, error) {
			return signaling.NewSIPEngine(cfg, logger)
		}
	}

	var stats *StatisticsReporter
	if opts.StatsSubmitter != nil {
		stats = NewStatisticsReporter(opts.StatsSubmitter, logger)
	}

	return &Phone{
		Events:          NewEventEmitter(),
		logger:          logger,
		newEngine:       newEngine,
		ring:            NewRingIndicator(opts.RingCue, logger),
		stats:           stats,
		connectivity:    ConnectivityDisconnected,
		registration:    RegistrationUnregistered,
		autoAnswerDelay: defaultAutoAnswerDelay,
	}
}

// Initialize tears down any existing engine, builds a new one from the
// config, and starts registration. Config or accessor problems surface
// through the registration-error state and the RegistrationFailed event,
// never as panics.
func (p *Phone) Initialize(cfg *Config, auth AuthAccessors) {
	p.mu.Lock()
	hasEngine := p.engine != nil
	p.mu.Unlock()
	if hasEngine {
		p.logger.Printf("phone: already initialized, shutting down existing engine first")
		p.Shutdown()
	}

	if cfg == nil || cfg.SIPUsername == "" || cfg.Realm == "" || cfg.WebsocketURI == "" {
		p.failInitialization("missing critical signaling config")
		return
	}
	if auth.Token == nil || auth.UserID == nil {
		p.failInitialization("auth accessors not provided")
		return
	}

	iceServers := ice.Resolve(cfg.STUNServers, cfg.TURNServers)
	if len(iceServers) == 0 {
		iceServers = ice.DefaultServers()
	}

	engine, err := p.newEngine(signaling.Config{
		WebsocketURI:     cfg.WebsocketURI,
		SIPUsername:      cfg.SIPUsername,
		SIPPassword:      cfg.SIPPassword,
		HA1Password:      cfg.HA1Password,
		Realm:            cfg.Realm,
		DisplayName:      cfg.DisplayName,
		UDPServerAddress: cfg.UDPServerAddress,
		ICEServers:       iceServers,
	}, p.logger)
	if err != nil {
		p.failInitialization("failed to create signaling engine: " + err.Error())
		return
	}

	engine.OnConnected(p.handleConnected)
	engine.OnDisconnected(p.handleDisconnected)
	engine.OnRegistered(p.handleRegistered)
	engine.OnUnregistered(p.handleUnregistered)
	engine.OnRegistrationFailed(p.handleRegistrationFailed)
	engine.OnInboundSession(p.handleInboundSession)

	p.mu.Lock()
	p.engine = engine
	p.token = auth.Token
	p.userID = auth.UserID
	p.connectivity = ConnectivityConnecting
	p.registration = RegistrationRegistering
	p.regError = ""
	if cfg.AutoAnswerDelay > 0 {
		p.autoAnswerDelay = cfg.AutoAnswerDelay
	} else {
		p.autoAnswerDelay = defaultAutoAnswerDelay
	}
	p.mu.Unlock()

	if err := engine.Start(context.Background()); err != nil {
		p.logger.Printf("phone: engine start failed: %v", err)
		p.handleRegistrationFailed(err.Error())
	}
}

func (p *Phone) failInitialization(cause string) {
	p.logger.Printf("phone: initialization failed: %s", cause)
	p.mu.Lock()
	p.registration = RegistrationFailed
	p.regError = cause
	p.mu.Unlock()
	p.Events.Emit(string(EventRegistrationFailed), cause)
}

// Shutdown terminates any non-terminal call (its statistics still fire),
// stops the engine, and resets all state including the credential
// accessors. Idempotent and safe when never initialized.
func (p *Phone) Shutdown() {
	p.mu.Lock()
	engine := p.engine
	var sess signaling.Session
	if p.call != nil {
		sess = p.call.session
	}
	p.mu.Unlock()

	p.ring.Stop()

	if sess != nil {
		// Terminate drives the session's terminal hook, which runs the
		// normal end-of-call path including statistics.
		if err := sess.Terminate(); err != nil {
			p.logger.Printf("phone: terminate during shutdown failed: %v", err)
		}
	}

	if engine != nil {
		if err := engine.Stop(); err != nil {
			p.logger.Printf("phone: engine stop failed: %v", err)
		}
	}

	p.mu.Lock()
	p.engine = nil
	p.connectivity = ConnectivityDisconnected
	p.registration = RegistrationUnregistered
	p.regError = ""
	p.token = nil
	p.userID = nil
	p.call = nil
	p.mu.Unlock()
}

// ---- Engine event handlers ----

func (p *Phone) handleConnected() {
	p.mu.Lock()
	p.connectivity = ConnectivityConnected
	p.mu.Unlock()
	p.Events.Emit(string(EventConnected), nil)
}

// handleDisconnected performs the full reset: a dropped transport
// invalidates the registration, the engine, and the credential accessors.
func (p *Phone) handleDisconnected() {
	p.mu.Lock()
	p.connectivity = ConnectivityDisconnected
	p.registration = RegistrationUnregistered
	p.engine = nil
	p.token = nil
	p.userID = nil
	p.mu.Unlock()
	p.Events.Emit(string(EventDisconnected), nil)
}

func (p *Phone) handleRegistered() {
	p.mu.Lock()
	p.registration = RegistrationRegistered
	p.regError = ""
	p.mu.Unlock()
	p.Events.Emit(string(EventRegistered), nil)
}

func (p *Phone) handleUnregistered(cause string) {
	p.mu.Lock()
	p.registration = RegistrationUnregistered
	p.mu.Unlock()
	p.Events.Emit(string(EventUnregistered), cause)
}

func (p *Phone) handleRegistrationFailed(cause string) {
	if cause == "" {
		cause = "unknown registration error"
	}
	p.mu.Lock()
	p.registration = RegistrationFailed
	p.regError = cause
	p.mu.Unlock()
	p.Events.Emit(string(EventRegistrationFailed), cause)
}

// ---- State getters ----

// Connectivity returns the signaling transport state.
func (p *Phone) Connectivity() ConnectivityStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectivity
}

// RegistrationStatus returns the registrar state.
func (p *Phone) RegistrationStatus() RegistrationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registration
}

// RegistrationError returns the last registration error, or "".
func (p *Phone) RegistrationError() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regError
}

// IsRegistered reports whether the phone can currently place calls.
func (p *Phone) IsRegistered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registration == RegistrationRegistered
}

// SetRemoteAudioSink binds the destination for remote call audio.
func (p *Phone) SetRemoteAudioSink(sink AudioSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}
