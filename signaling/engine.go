/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

// Logger matches the stdlib log.Printf shape.
type Logger interface {
	Printf(format string, v ...any)
}

// registerExpires is the registration lifetime requested from the
// registrar. Refreshes run at half this interval.
const registerExpires = 300

// SIPEngine implements Engine over sipgo. One engine owns one sipgo user
// agent, one registration, and the sessions created under it.
type SIPEngine struct {
	cfg    Config
	logger Logger

	ua        *sipgo.UserAgent
	client    *sipgo.Client
	server    *sipgo.Server
	dialogCli *sipgo.DialogClientCache
	dialogSrv *sipgo.DialogServerCache
	contact   sip.ContactHeader

	mu         sync.Mutex
	started    bool
	stopped    bool
	registered bool
	stopCh     chan struct{}

	onConnected          func()
	onDisconnected       func()
	onRegistered         func()
	onUnregistered       func(cause string)
	onRegistrationFailed func(cause string)
	onInbound            func(Session)

	sessionsMu sync.RWMutex
	sessions   map[string]*sipSession
}

// NewSIPEngine builds the sipgo user agent, client, server handles, and
// dialog caches for the given configuration.
func NewSIPEngine(cfg Config, logger Logger) (*SIPEngine, error) {
	if cfg.SIPUsername == "" || cfg.Realm == "" || cfg.WebsocketURI == "" {
		return nil, fmt.Errorf("sip username, realm, and websocket URI are required")
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(cfg.SIPUsername))
	if err != nil {
		return nil, fmt.Errorf("init UA: %w", err)
	}

	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("new server: %w", err)
	}
	cli, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("new client: %w", err)
	}

	contact := sip.ContactHeader{
		Address: sip.Uri{User: cfg.SIPUsername, Host: cfg.Realm},
	}

	engine := &SIPEngine{
		cfg:       cfg,
		logger:    logger,
		ua:        ua,
		client:    cli,
		server:    srv,
		dialogCli: sipgo.NewDialogClientCache(cli, contact),
		dialogSrv: sipgo.NewDialogServerCache(cli, contact),
		contact:   contact,
		stopCh:    make(chan struct{}),
		sessions:  make(map[string]*sipSession),
	}
	engine.initServerHandlers()

	return engine, nil
}

// ---- Handler hooks ----

func (e *SIPEngine) OnConnected(fn func())                 { e.onConnected = fn }
func (e *SIPEngine) OnDisconnected(fn func())              { e.onDisconnected = fn }
func (e *SIPEngine) OnRegistered(fn func())                { e.onRegistered = fn }
func (e *SIPEngine) OnUnregistered(fn func(cause string))  { e.onUnregistered = fn }
func (e *SIPEngine) OnRegistrationFailed(fn func(c string)) { e.onRegistrationFailed = fn }
func (e *SIPEngine) OnInboundSession(fn func(Session))     { e.onInbound = fn }

// ---- Lifecycle ----

// Start registers with the configured registrar and keeps the
// registration refreshed until Stop. The initial registration outcome and
// every refresh outcome are reported through the handler hooks.
func (e *SIPEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("engine already started")
	}
	e.started = true
	stopCh := e.stopCh
	e.mu.Unlock()

	// The transport connection is established lazily by the first
	// request; in-dialog requests arriving on that shared connection are
	// dispatched to the server handlers, so no dedicated listener is
	// required for the websocket client role.
	if e.onConnected != nil {
		e.onConnected()
	}

	go e.registrationLoop(ctx, stopCh)
	return nil
}

func (e *SIPEngine) registrationLoop(ctx context.Context, stopCh chan struct{}) {
	refresh := time.NewTicker(registerExpires / 2 * time.Second)
	defer refresh.Stop()

	attempt := func() {
		if err := e.register(ctx, registerExpires); err != nil {
			e.logf("signaling: registration failed: %v", err)
			e.mu.Lock()
			e.registered = false
			e.mu.Unlock()
			if e.onRegistrationFailed != nil {
				e.onRegistrationFailed(err.Error())
			}
			return
		}
		e.mu.Lock()
		first := !e.registered
		e.registered = true
		e.mu.Unlock()
		if first && e.onRegistered != nil {
			e.onRegistered()
		}
	}

	attempt()
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-refresh.C:
			attempt()
		}
	}
}

// register sends a REGISTER, answering a digest challenge when the
// registrar asks for one.
func (e *SIPEngine) register(ctx context.Context, expires int) error {
	recipient := sip.Uri{User: e.cfg.SIPUsername, Host: e.cfg.Realm}

	req := sip.NewRequest(sip.REGISTER, recipient)
	req.AppendHeader(&e.contact)
	req.AppendHeader(sip.NewHeader("Expires", fmt.Sprintf("%d", expires)))
	e.setDestination(req)

	tx, err := e.client.TransactionRequest(ctx, req.Clone())
	if err != nil {
		return fmt.Errorf("fail to create transaction req=%q: %w", req.StartLine(), err)
	}
	defer tx.Terminate()

	res, err := getResponse(ctx, tx)
	if err != nil {
		return fmt.Errorf("fail to get response req=%q: %w", req.StartLine(), err)
	}

	if res.StatusCode == sip.StatusUnauthorized {
		wwwAuth := res.GetHeader("WWW-Authenticate")
		if wwwAuth == nil {
			return fmt.Errorf("401 without WWW-Authenticate header")
		}
		chal, err := digest.ParseChallenge(wwwAuth.Value())
		if err != nil {
			return fmt.Errorf("fail to parse challenge wwwauth=%q: %w", wwwAuth.Value(), err)
		}

		cred, err := digest.Digest(chal, digest.Options{
			Method:   req.Method.String(),
			URI:      recipient.Host,
			Username: e.cfg.SIPUsername,
			Password: e.digestPassword(),
		})
		if err != nil {
			return fmt.Errorf("fail to build digest: %w", err)
		}

		newReq := req.Clone()
		newReq.AppendHeader(sip.NewHeader("Authorization", cred.String()))

		tx2, err := e.client.TransactionRequest(ctx, newReq)
		if err != nil {
			return fmt.Errorf("fail to create transaction req=%q: %w", newReq.StartLine(), err)
		}
		defer tx2.Terminate()

		res, err = getResponse(ctx, tx2)
		if err != nil {
			return fmt.Errorf("fail to get response req=%q: %w", newReq.StartLine(), err)
		}
	}

	if res.StatusCode != sip.StatusOK {
		return fmt.Errorf("registration rejected: %s", res.StartLine())
	}
	return nil
}

// digestPassword prefers the precomputed HA1 secret when the deployment
// provides one.
func (e *SIPEngine) digestPassword() string {
	if e.cfg.SIPPassword != "" {
		return e.cfg.SIPPassword
	}
	return e.cfg.HA1Password
}

// setDestination points the request at the configured edge rather than
// the DNS resolution of the realm.
func (e *SIPEngine) setDestination(req *sip.Request) {
	if e.cfg.UDPServerAddress != "" {
		req.SetDestination(e.cfg.UDPServerAddress)
		return
	}
	if u, err := url.Parse(e.cfg.WebsocketURI); err == nil && u.Host != "" {
		req.SetDestination(u.Host)
	}
}

// Stop deregisters (best effort) and closes the user agent. Safe to call
// more than once.
func (e *SIPEngine) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	wasRegistered := e.registered
	e.registered = false
	close(e.stopCh)
	e.mu.Unlock()

	if wasRegistered {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := e.register(ctx, 0); err != nil {
			e.logf("signaling: deregister failed: %v", err)
		}
		cancel()
		if e.onUnregistered != nil {
			e.onUnregistered("shutdown")
		}
	}

	err := e.ua.Close()
	if e.onDisconnected != nil {
		e.onDisconnected()
	}
	return err
}

// ---- Outbound calls ----

// Originate places an INVITE to the target and returns the pending
// session. The target may be a full SIP URI or a bare user, which is
// completed with the configured realm.
func (e *SIPEngine) Originate(ctx context.Context, target string) (Session, error) {
	uri, err := e.parseTarget(target)
	if err != nil {
		return nil, err
	}

	media, err := NewMediaEngine(e.cfg.ICEServers, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create media engine: %w", err)
	}
	if _, err := media.AddAudioTrack(); err != nil {
		media.Close()
		return nil, err
	}
	offer, err := media.CreateOffer()
	if err != nil {
		media.Close()
		return nil, err
	}
	offer = cleanOutgoingSDP(offer)

	sess := &sipSession{
		engine:    e,
		media:     media,
		remoteURI: uri.String(),
		localSDP:  offer,
	}

	inviteCtx, cancel := context.WithCancel(ctx)
	sess.cancelInvite = cancel

	go e.runInvite(inviteCtx, sess, uri, offer)
	return sess, nil
}

func (e *SIPEngine) runInvite(ctx context.Context, sess *sipSession, uri sip.Uri, offer string) {
	dlg, err := e.dialogCli.Invite(ctx, uri, []byte(offer),
		sip.NewHeader("Content-Type", "application/sdp"),
	)
	if err != nil {
		sess.fireFailed(fmt.Sprintf("invite failed: %v", err))
		sess.closeMedia()
		return
	}

	sess.mu.Lock()
	sess.clientDlg = dlg
	sess.callID = dlg.InviteRequest.CallID().Value()
	sess.mu.Unlock()
	e.trackSession(sess)

	// The request is on the wire; the far end is being alerted.
	sess.fireProgress()

	if err := dlg.WaitAnswer(ctx, sipgo.AnswerOptions{}); err != nil {
		e.untrackSession(sess)
		if ctx.Err() != nil {
			sess.fireEnded()
		} else {
			sess.fireFailed(fmt.Sprintf("call not answered: %v", err))
		}
		sess.closeMedia()
		return
	}

	if body := dlg.InviteResponse.Body(); len(body) > 0 {
		if err := sess.media.SetRemoteAnswer(string(body)); err != nil {
			e.logf("signaling: failed to apply SDP answer: %v", err)
		}
	}
	if err := dlg.Ack(ctx); err != nil {
		e.untrackSession(sess)
		sess.fireFailed(fmt.Sprintf("ack failed: %v", err))
		sess.closeMedia()
		return
	}

	sess.mu.Lock()
	sess.answered = true
	sess.mu.Unlock()
	sess.fireAccepted()
}

func (e *SIPEngine) parseTarget(target string) (sip.Uri, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return sip.Uri{}, fmt.Errorf("target cannot be empty")
	}
	if !strings.HasPrefix(target, "sip:") && !strings.HasPrefix(target, "sips:") {
		if strings.Contains(target, "@") {
			target = "sip:" + target
		} else {
			target = "sip:" + target + "@" + e.cfg.Realm
		}
	}

	var uri sip.Uri
	if err := sip.ParseUri(target, &uri); err != nil {
		return sip.Uri{}, fmt.Errorf("invalid target %q: %w", target, err)
	}
	return uri, nil
}

// ---- Inbound calls ----

func (e *SIPEngine) initServerHandlers() {
	e.server.OnInvite(func(req *sip.Request, tx sip.ServerTransaction) {
		dlg, err := e.dialogSrv.ReadInvite(req, tx)
		if err != nil {
			tx.Respond(sip.NewResponseFromRequest(req, sip.StatusBadRequest, "Bad Request", nil))
			return
		}
		e.handleInvite(req, dlg)
	})

	e.server.OnAck(func(req *sip.Request, tx sip.ServerTransaction) {
		e.dialogSrv.ReadAck(req, tx)
		if sess := e.sessionByCallID(req.CallID().Value()); sess != nil {
			sess.fireConfirmed()
		}
	})

	e.server.OnBye(func(req *sip.Request, tx sip.ServerTransaction) {
		// The BYE may belong to either dialog side.
		if err := e.dialogSrv.ReadBye(req, tx); err != nil {
			e.dialogCli.ReadBye(req, tx)
		}
		callID := req.CallID().Value()
		if sess := e.sessionByCallID(callID); sess != nil {
			e.untrackSession(sess)
			sess.fireEnded()
			sess.closeMedia()
		}
	})
}

func (e *SIPEngine) handleInvite(req *sip.Request, dlg *sipgo.DialogServerSession) {
	media, err := NewMediaEngine(e.cfg.ICEServers, e.logger)
	if err != nil {
		e.logf("signaling: failed to create media engine for inbound call: %v", err)
		dlg.Respond(sip.StatusInternalServerError, "Server Error", nil)
		return
	}
	if len(req.Body()) > 0 {
		if err := media.SetRemoteOffer(string(req.Body())); err != nil {
			e.logf("signaling: failed to apply inbound SDP offer: %v", err)
			media.Close()
			dlg.Respond(sip.StatusNotAcceptableHere, "Not Acceptable Here", nil)
			return
		}
	}

	sess := &sipSession{
		engine:     e,
		media:      media,
		inbound:    true,
		serverDlg:  dlg,
		callID:     req.CallID().Value(),
		autoAnswer: req.GetHeader("Auto-Answer") != nil,
	}
	if from := req.From(); from != nil {
		sess.remoteURI = from.Address.String()
		sess.remoteDisplay = from.DisplayName
	}
	e.trackSession(sess)

	if err := dlg.Respond(sip.StatusRinging, "Ringing", nil); err != nil {
		e.logf("signaling: failed to send 180: %v", err)
	}

	if e.onInbound != nil {
		e.onInbound(sess)
	}
}

// ---- Session registry ----

func (e *SIPEngine) trackSession(s *sipSession) {
	e.sessionsMu.Lock()
	e.sessions[s.callID] = s
	e.sessionsMu.Unlock()
}

func (e *SIPEngine) untrackSession(s *sipSession) {
	e.sessionsMu.Lock()
	delete(e.sessions, s.callID)
	e.sessionsMu.Unlock()
}

func (e *SIPEngine) sessionByCallID(callID string) *sipSession {
	e.sessionsMu.RLock()
	defer e.sessionsMu.RUnlock()
	return e.sessions[callID]
}

func (e *SIPEngine) logf(format string, v ...any) {
	if e.logger != nil {
		e.logger.Printf(format, v...)
	}
}

// getResponse waits for a final response on the transaction, skipping
// provisional ones.
func getResponse(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok {
				return nil, fmt.Errorf("transaction terminated")
			}
			if res.IsProvisional() {
				continue
			}
			return res, nil
		case <-tx.Done():
			return nil, fmt.Errorf("transaction terminated")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
