/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/pion/webrtc/v4"
)

// sipSession is one call leg over a sipgo dialog plus its media engine.
// Exactly one of clientDlg/serverDlg is set depending on direction.
type sipSession struct {
	engine *SIPEngine
	media  *MediaEngine

	mu            sync.Mutex
	inbound       bool
	answered      bool
	terminated    bool
	endFired      bool
	autoAnswer    bool
	remoteURI     string
	remoteDisplay string
	localSDP      string
	callID        string
	clientDlg     *sipgo.DialogClientSession
	serverDlg     *sipgo.DialogServerSession
	cancelInvite  context.CancelFunc

	onProgress    func()
	onAccepted    func()
	onConfirmed   func()
	onEnded       func()
	onFailed      func(cause string)
	onRemoteTrack func(track *webrtc.TrackRemote)
}

// ---- Session hooks ----

func (s *sipSession) OnProgress(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onProgress = fn
}

func (s *sipSession) OnAccepted(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAccepted = fn
}

func (s *sipSession) OnConfirmed(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConfirmed = fn
}

func (s *sipSession) OnEnded(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = fn
}

func (s *sipSession) OnFailed(fn func(cause string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailed = fn
}

func (s *sipSession) OnRemoteTrack(fn func(track *webrtc.TrackRemote)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRemoteTrack = fn
	s.media.OnRemoteTrack(fn)
}

func (s *sipSession) fireProgress() {
	s.mu.Lock()
	fn := s.onProgress
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *sipSession) fireAccepted() {
	s.mu.Lock()
	fn := s.onAccepted
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *sipSession) fireConfirmed() {
	s.mu.Lock()
	fn := s.onConfirmed
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// fireEnded and fireFailed share a latch — a session reports exactly one
// terminal event even when teardown paths overlap.
func (s *sipSession) fireEnded() {
	s.mu.Lock()
	if s.endFired {
		s.mu.Unlock()
		return
	}
	s.endFired = true
	fn := s.onEnded
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *sipSession) fireFailed(cause string) {
	s.mu.Lock()
	if s.endFired {
		s.mu.Unlock()
		return
	}
	s.endFired = true
	fn := s.onFailed
	s.mu.Unlock()
	if fn != nil {
		fn(cause)
	}
}

// ---- Session operations ----

// Answer accepts an inbound call: builds the SDP answer and sends 200 OK.
// The Confirmed hook fires when the caller's ACK arrives.
func (s *sipSession) Answer() error {
	s.mu.Lock()
	if !s.inbound {
		s.mu.Unlock()
		return fmt.Errorf("answer on outbound session")
	}
	if s.answered || s.terminated {
		s.mu.Unlock()
		return fmt.Errorf("session already answered or terminated")
	}
	dlg := s.serverDlg
	s.mu.Unlock()

	if _, err := s.media.AddAudioTrack(); err != nil {
		return err
	}
	answer, err := s.media.CreateAnswer()
	if err != nil {
		return err
	}
	answer = cleanOutgoingSDP(answer)

	if err := dlg.RespondSDP([]byte(answer)); err != nil {
		return fmt.Errorf("failed to send 200 OK: %w", err)
	}

	s.mu.Lock()
	s.answered = true
	s.localSDP = answer
	s.mu.Unlock()

	s.fireAccepted()
	return nil
}

// Terminate ends the session from any phase. A terminal hook still fires
// so the owner's cleanup path runs exactly as it does for a remote hangup.
func (s *sipSession) Terminate() error {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return nil
	}
	s.terminated = true
	inbound := s.inbound
	answered := s.answered
	clientDlg := s.clientDlg
	serverDlg := s.serverDlg
	cancel := s.cancelInvite
	s.mu.Unlock()

	s.engine.untrackSession(s)

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()

	var err error
	switch {
	case !answered && inbound:
		// Reject a call we never picked up.
		err = serverDlg.Respond(sip.StatusBusyHere, "Busy Here", nil)
	case !answered:
		// Outbound, dialing or ringing: cancelling the invite context
		// stops runInvite — CANCEL once the dialog exists, an aborted
		// dial before that — and its cancelled path fires the terminal
		// hook.
		if cancel != nil {
			cancel()
		}
	case inbound:
		err = serverDlg.Bye(ctx)
	default:
		err = clientDlg.Bye(ctx)
	}

	if !answered && !inbound {
		// runInvite's context-cancelled path fires the terminal hook.
		return err
	}

	s.fireEnded()
	s.closeMedia()
	return err
}

// Mute stops sending local audio. The flag lives on the media engine so
// the sample writer observes it.
func (s *sipSession) Mute() error {
	s.media.Mute()
	return nil
}

// Unmute resumes sending local audio.
func (s *sipSession) Unmute() error {
	s.media.Unmute()
	return nil
}

// Hold renegotiates the media direction to sendonly. done receives the
// outcome once the far end answers the re-INVITE.
func (s *sipSession) Hold(done func(error)) {
	s.reinvite(true, done)
}

// Unhold renegotiates the media direction back to sendrecv.
func (s *sipSession) Unhold(done func(error)) {
	s.reinvite(false, done)
}

func (s *sipSession) reinvite(hold bool, done func(error)) {
	if done == nil {
		done = func(error) {}
	}

	s.mu.Lock()
	if !s.answered || s.terminated {
		s.mu.Unlock()
		done(fmt.Errorf("session not active"))
		return
	}
	localSDP := s.localSDP
	dlg := s.dialogDoer()
	s.mu.Unlock()

	if dlg == nil {
		done(fmt.Errorf("no dialog available"))
		return
	}

	body := holdSDP(localSDP, hold)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		req := s.newInDialogRequest(sip.INVITE, []byte(body))
		res, err := dlg.Do(ctx, req)
		if err != nil {
			done(err)
			return
		}
		if res.StatusCode != sip.StatusOK {
			done(fmt.Errorf("re-INVITE rejected: %s", res.StartLine()))
			return
		}
		if acker, ok := dlg.(interface{ Ack(context.Context) error }); ok {
			if err := acker.Ack(ctx); err != nil {
				s.engine.logf("signaling: re-INVITE ack failed: %v", err)
			}
		}
		done(nil)
	}()
}

// dialogDoer returns whichever dialog side exists as an in-dialog request
// sender. Caller holds s.mu.
func (s *sipSession) dialogDoer() interface {
	Do(ctx context.Context, req *sip.Request) (*sip.Response, error)
} {
	if s.clientDlg != nil {
		return s.clientDlg
	}
	if s.serverDlg != nil {
		return s.serverDlg
	}
	return nil
}

func (s *sipSession) newInDialogRequest(method sip.RequestMethod, body []byte) *sip.Request {
	var uri sip.Uri
	sip.ParseUri(s.remoteURI, &uri)
	req := sip.NewRequest(method, uri)
	if len(body) > 0 {
		req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
		req.SetBody(body)
	}
	return req
}

// ---- Session metadata ----

func (s *sipSession) RemoteURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteURI
}

func (s *sipSession) RemoteDisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDisplay
}

func (s *sipSession) AutoAnswer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoAnswer
}

// StatsSnapshot returns the peer connection stats keyed by report ID.
func (s *sipSession) StatsSnapshot() (map[string]any, error) {
	return s.media.StatsSnapshot()
}

func (s *sipSession) closeMedia() {
	if err := s.media.Close(); err != nil {
		s.engine.logf("signaling: failed to close media engine: %v", err)
	}
}
