/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package phone

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/tejzpr/softphone-go/signaling"
)

// CallDirection tells which side initiated the call.
type CallDirection string

const (
	DirectionIncoming CallDirection = "incoming"
	DirectionOutgoing CallDirection = "outgoing"
)

// callState is the single non-terminal call the phone tracks. The engine
// session handle stays behind the signaling interfaces; everything else
// lives here under the phone's mutex.
type callState struct {
	session    signaling.Session
	direction  CallDirection
	phase      CallPhase
	remote     IncomingCallInfo
	startTime  time.Time
	callID     string
	muted      bool
	held       bool
	autoAnswer bool
}

// ---- Call state getters ----

// CallPhase returns the current call phase, CallPhaseIdle when no call
// exists.
func (p *Phone) CallPhase() CallPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.call == nil {
		return CallPhaseIdle
	}
	return p.call.phase
}

// IncomingCall returns the ringing inbound call's remote identity, or nil.
func (p *Phone) IncomingCall() *IncomingCallInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.call == nil || p.call.phase != CallPhaseIncoming {
		return nil
	}
	info := p.call.remote
	return &info
}

// IsMuted reports whether the active call's microphone is muted.
func (p *Phone) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.call != nil && p.call.muted
}

// IsOnHold reports whether the active call is on hold.
func (p *Phone) IsOnHold() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.call != nil && p.call.held
}

// CallID returns the active call's stable identifier, or "" before the
// call reaches active.
func (p *Phone) CallID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.call == nil {
		return ""
	}
	return p.call.callID
}

// CallStartTime returns when the call became active, zero otherwise.
func (p *Phone) CallStartTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.call == nil {
		return time.Time{}
	}
	return p.call.startTime
}

// ---- User actions ----

// Originate places an outbound call. The phone must be registered, the
// target non-empty, and no other call in progress; a second call attempt
// is rejected, never queued.
func (p *Phone) Originate(target string) error {
	target = strings.TrimSpace(target)

	p.mu.Lock()
	if p.engine == nil || p.registration != RegistrationRegistered {
		p.mu.Unlock()
		return ErrNotRegistered
	}
	if target == "" {
		p.mu.Unlock()
		return ErrInvalidTarget
	}
	if p.call != nil {
		p.mu.Unlock()
		return ErrCallInProgress
	}
	// Reserve the call slot before releasing the lock so a concurrent
	// Originate or inbound call is rejected while the engine dials.
	p.call = &callState{
		direction: DirectionOutgoing,
		phase:     CallPhaseOutgoing,
		remote:    IncomingCallInfo{URI: target},
	}
	engine := p.engine
	p.mu.Unlock()

	p.emitPhase(CallPhaseOutgoing)

	sess, err := engine.Originate(context.Background(), target)
	if err != nil {
		p.mu.Lock()
		p.call = nil
		p.mu.Unlock()
		p.emitPhase(CallPhaseIdle)
		return err
	}

	p.mu.Lock()
	if p.call == nil || p.call.direction != DirectionOutgoing {
		// The slot vanished while dialing (shutdown); drop the session.
		p.mu.Unlock()
		if err := sess.Terminate(); err != nil {
			p.logger.Printf("phone: terminate after lost call slot failed: %v", err)
		}
		return nil
	}
	p.call.session = sess
	p.call.remote.URI = sess.RemoteURI()
	p.mu.Unlock()

	p.attachSessionHandlers(sess)
	return nil
}

// AnswerIncoming accepts the ringing inbound call. A no-op when no call
// is in the incoming phase.
func (p *Phone) AnswerIncoming() error {
	p.mu.Lock()
	if p.call == nil || p.call.phase != CallPhaseIncoming || p.call.session == nil {
		p.mu.Unlock()
		return nil
	}
	sess := p.call.session
	p.mu.Unlock()

	p.ring.Stop()
	if err := sess.Answer(); err != nil {
		p.logger.Printf("phone: answer failed: %v", err)
		return err
	}
	return nil
}

// TerminateCurrent ends the current call from any phase. Cleanup and
// statistics run from the session's terminal event.
func (p *Phone) TerminateCurrent() error {
	p.mu.Lock()
	if p.call == nil || p.call.session == nil {
		p.mu.Unlock()
		return nil
	}
	sess := p.call.session
	p.mu.Unlock()

	return sess.Terminate()
}

// ToggleMute flips the microphone mute flag. A no-op outside the active
// phase.
func (p *Phone) ToggleMute() {
	p.mu.Lock()
	if p.call == nil || p.call.phase != CallPhaseActive || p.call.session == nil {
		p.mu.Unlock()
		return
	}
	sess := p.call.session
	muted := p.call.muted
	p.call.muted = !muted
	nowMuted := p.call.muted
	p.mu.Unlock()

	var err error
	if muted {
		err = sess.Unmute()
	} else {
		err = sess.Mute()
	}
	if err != nil {
		p.logger.Printf("phone: mute toggle failed: %v", err)
	}
	p.Events.Emit(string(EventMuteChanged), nowMuted)
}

// ToggleHold requests hold or resume. The flag only changes when the
// engine reports the renegotiation succeeded; failures are logged.
func (p *Phone) ToggleHold() {
	p.mu.Lock()
	if p.call == nil || p.call.phase != CallPhaseActive || p.call.session == nil {
		p.mu.Unlock()
		return
	}
	sess := p.call.session
	held := p.call.held
	p.mu.Unlock()

	done := func(err error) {
		if err != nil {
			p.logger.Printf("phone: hold toggle failed: %v", err)
			return
		}
		p.mu.Lock()
		if p.call == nil || p.call.session != sess {
			p.mu.Unlock()
			return
		}
		p.call.held = !held
		nowHeld := p.call.held
		p.mu.Unlock()
		p.Events.Emit(string(EventHoldChanged), nowHeld)
	}

	if held {
		sess.Unhold(done)
	} else {
		sess.Hold(done)
	}
}

// ---- Session event plumbing ----

// handleInboundSession admits a new inbound call, starts the ring, and
// arms the auto-answer timer when the request asked for it.
func (p *Phone) handleInboundSession(sess signaling.Session) {
	p.mu.Lock()
	if p.call != nil {
		// Single non-terminal call: a second inbound session is refused.
		p.mu.Unlock()
		p.logger.Printf("phone: rejecting inbound call, another call is in progress")
		sess.Terminate()
		return
	}
	autoAnswer := sess.AutoAnswer()
	info := IncomingCallInfo{
		URI:         sess.RemoteURI(),
		DisplayName: sess.RemoteDisplayName(),
		AutoAnswer:  autoAnswer,
	}
	if info.URI == "" {
		info.URI = "unknown caller"
	}
	p.call = &callState{
		session:    sess,
		direction:  DirectionIncoming,
		phase:      CallPhaseIncoming,
		remote:     info,
		autoAnswer: autoAnswer,
	}
	delay := p.autoAnswerDelay
	p.mu.Unlock()

	p.attachSessionHandlers(sess)
	p.Events.Emit(string(EventIncomingCall), &info)
	p.emitPhase(CallPhaseIncoming)

	p.ring.Start()

	if autoAnswer {
		p.logger.Printf("phone: auto-answering call in %s", delay)
		p.ring.ArmAutoAnswer(delay, func() {
			// Re-validate at fire: the call may have been answered,
			// ended, or replaced while the timer ran.
			p.mu.Lock()
			stillIncoming := p.call != nil && p.call.session == sess && p.call.phase == CallPhaseIncoming
			p.mu.Unlock()
			if stillIncoming {
				p.AnswerIncoming()
			}
		})
	}
}

func (p *Phone) attachSessionHandlers(sess signaling.Session) {
	sess.OnProgress(func() { p.handleSessionProgress(sess) })
	sess.OnAccepted(func() { p.handleSessionActive(sess) })
	sess.OnConfirmed(func() { p.handleSessionActive(sess) })
	sess.OnEnded(func() { p.handleSessionEnded(sess) })
	sess.OnFailed(func(cause string) {
		p.logger.Printf("phone: call failed: %s", cause)
		p.handleSessionEnded(sess)
	})
	sess.OnRemoteTrack(func(track *webrtc.TrackRemote) { p.handleRemoteTrack(track) })
}

func (p *Phone) handleSessionProgress(sess signaling.Session) {
	p.mu.Lock()
	if p.call == nil || p.call.session != sess || p.call.direction != DirectionOutgoing {
		p.mu.Unlock()
		return
	}
	if p.call.phase != CallPhaseOutgoing {
		p.mu.Unlock()
		return
	}
	p.call.phase = CallPhaseOutgoingProgress
	p.mu.Unlock()
	p.emitPhase(CallPhaseOutgoingProgress)
}

// handleSessionActive drives the transition to active. Accepted and
// confirmed both land here; the second arrival is idempotent — the start
// timestamp and call ID are assigned once.
func (p *Phone) handleSessionActive(sess signaling.Session) {
	p.ring.Stop()

	p.mu.Lock()
	if p.call == nil || p.call.session != sess {
		p.mu.Unlock()
		return
	}
	if p.call.phase == CallPhaseActive {
		p.mu.Unlock()
		return
	}
	p.call.phase = CallPhaseActive
	p.call.muted = false
	p.call.held = false
	p.call.startTime = time.Now()
	p.call.callID = uuid.NewString()
	p.mu.Unlock()

	p.emitPhase(CallPhaseActive)
}

// handleSessionEnded is the single cleanup path for every terminal event:
// local hangup, remote hangup, and failure. Statistics fire only when the
// call reached active, and only once — the call slot is cleared before
// the lock is released.
func (p *Phone) handleSessionEnded(sess signaling.Session) {
	p.ring.Stop()

	p.mu.Lock()
	if p.call == nil || p.call.session != sess {
		p.mu.Unlock()
		return
	}
	start := p.call.startTime
	callID := p.call.callID
	p.call = nil
	sink := p.sink
	token := p.token
	userID := p.userID
	p.mu.Unlock()

	if !start.IsZero() && p.stats != nil {
		p.stats.Report(sess, callID, start, time.Now(), token, userID)
	}

	if sink != nil {
		sink.Clear()
	}

	p.Events.Emit(string(EventCallEnded), callID)
	p.emitPhase(CallPhaseIdle)
}

func (p *Phone) handleRemoteTrack(track *webrtc.TrackRemote) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink.SetTrack(track)
	}
}

func (p *Phone) emitPhase(phase CallPhase) {
	p.Events.Emit(string(EventCallPhaseChanged), phase)
}
