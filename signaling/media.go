/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// AudioTrackWriter is an interface for writing audio samples to a track
type AudioTrackWriter interface {
	WriteSample(sample []byte, duration uint32) error
}

// MediaEngine manages the WebRTC peer connection and media tracks for one
// call leg.
type MediaEngine struct {
	mu             sync.Mutex
	peerConnection *webrtc.PeerConnection
	localTrack     *webrtc.TrackLocalStaticRTP
	remoteTrack    *webrtc.TrackRemote
	muted          bool
	onRemoteTrack  func(track *webrtc.TrackRemote)
	api            *webrtc.API
	logger         interface{ Printf(string, ...any) }
}

// NewMediaEngine creates a WebRTC media engine configured for SIP voice
// interop: PCMU/PCMA only, early-media tolerant, default interceptors.
func NewMediaEngine(iceServers []webrtc.ICEServer, logger interface{ Printf(string, ...any) }) (*MediaEngine, error) {
	// Register only PCMU and PCMA. RegisterDefaultCodecs adds Opus/G722
	// and video codecs that SIP voice gateways reject during negotiation.
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		PayloadType:        0,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register PCMU: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000},
		PayloadType:        8,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register PCMA: %w", err)
	}

	// ice-lite gateways send RTP before the SDP answer settles. Enable
	// undeclared SSRC handling so OnTrack fires for early media.
	settings := webrtc.SettingEngine{}
	settings.SetHandleUndeclaredSSRCWithoutAnswer(true)

	// Register default interceptors (RTCP reports, NACK, TWCC) — required
	// when using a custom MediaEngine/SettingEngine, otherwise incoming
	// SRTP is not processed and OnTrack may not fire.
	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithSettingEngine(settings),
		webrtc.WithInterceptorRegistry(i),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	engine := &MediaEngine{
		peerConnection: pc,
		api:            api,
		logger:         logger,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		engine.logf("media: connection state %s", s.String())
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		engine.logf("media: ICE connection state %s", s.String())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		engine.logf("media: remote track codec=%s ssrc=%d", track.Codec().MimeType, track.SSRC())
		engine.mu.Lock()
		engine.remoteTrack = track
		handler := engine.onRemoteTrack
		engine.mu.Unlock()

		if handler != nil {
			handler(track)
		}
	})

	return engine, nil
}

func (me *MediaEngine) logf(format string, v ...any) {
	if me.logger != nil {
		me.logger.Printf(format, v...)
	}
}

// OnRemoteTrack sets the callback for when a remote audio track is received
func (me *MediaEngine) OnRemoteTrack(handler func(track *webrtc.TrackRemote)) {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.onRemoteTrack = handler
}

// AddAudioTrack adds the local PCMU audio track to the peer connection and
// returns it for the application to feed samples into.
func (me *MediaEngine) AddAudioTrack() (*webrtc.TrackLocalStaticRTP, error) {
	me.mu.Lock()
	defer me.mu.Unlock()

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		"audio",
		"softphone",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	// AddTransceiverFromTrack with sendrecv so a proper bidirectional
	// transceiver exists — required for OnTrack to fire on return RTP.
	transceiver, err := me.peerConnection.AddTransceiverFromTrack(track,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add audio transceiver: %w", err)
	}

	// Read RTCP from the sender to keep the connection alive
	go func() {
		sender := transceiver.Sender()
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	me.localTrack = track
	return track, nil
}

// CreateOffer creates an SDP offer, waits for ICE gathering, and returns
// the full local description.
func (me *MediaEngine) CreateOffer() (string, error) {
	me.mu.Lock()
	defer me.mu.Unlock()

	offer, err := me.peerConnection.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create offer: %w", err)
	}
	if err := me.peerConnection.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(me.peerConnection)
	<-gatherComplete

	localDesc := me.peerConnection.LocalDescription()
	if localDesc == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}
	return localDesc.SDP, nil
}

// CreateAnswer creates an SDP answer for a previously applied remote offer.
func (me *MediaEngine) CreateAnswer() (string, error) {
	me.mu.Lock()
	defer me.mu.Unlock()

	answer, err := me.peerConnection.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := me.peerConnection.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(me.peerConnection)
	<-gatherComplete

	localDesc := me.peerConnection.LocalDescription()
	if localDesc == nil {
		return "", fmt.Errorf("local description is nil after gathering")
	}
	return localDesc.SDP, nil
}

// SetRemoteOffer sets the remote SDP offer on the peer connection
func (me *MediaEngine) SetRemoteOffer(sdp string) error {
	me.mu.Lock()
	defer me.mu.Unlock()

	return me.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  fixIncomingSDP(sdp),
	})
}

// SetRemoteAnswer sets the remote SDP answer on the peer connection.
// If the PC is already in stable state (answer already applied), this is a no-op.
func (me *MediaEngine) SetRemoteAnswer(sdp string) error {
	me.mu.Lock()
	defer me.mu.Unlock()

	// Retransmitted 200 OKs can deliver the same answer twice.
	if me.peerConnection.SignalingState() == webrtc.SignalingStateStable {
		me.logf("media: ignoring duplicate SDP answer (signaling state already stable)")
		return nil
	}

	return me.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  fixIncomingSDP(sdp),
	})
}

// Mute disables the local audio track
func (me *MediaEngine) Mute() {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.muted = true
}

// Unmute enables the local audio track
func (me *MediaEngine) Unmute() {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.muted = false
}

// IsMuted returns whether the local audio is muted
func (me *MediaEngine) IsMuted() bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.muted
}

// GetLocalTrack returns the local audio track
func (me *MediaEngine) GetLocalTrack() *webrtc.TrackLocalStaticRTP {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.localTrack
}

// GetRemoteTrack returns the remote audio track
func (me *MediaEngine) GetRemoteTrack() *webrtc.TrackRemote {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.remoteTrack
}

// GetConnectionState returns the current peer connection state
func (me *MediaEngine) GetConnectionState() webrtc.PeerConnectionState {
	return me.peerConnection.ConnectionState()
}

// StatsSnapshot captures the peer connection's stats report as a generic
// map keyed by report ID, suitable for submitting as an opaque blob.
func (me *MediaEngine) StatsSnapshot() (map[string]any, error) {
	me.mu.Lock()
	pc := me.peerConnection
	me.mu.Unlock()

	if pc == nil {
		return nil, fmt.Errorf("peer connection closed")
	}

	report := pc.GetStats()

	// Round-trip through JSON to flatten the typed stats structs into
	// plain maps.
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode stats report: %w", err)
	}
	blob := make(map[string]any)
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, fmt.Errorf("failed to decode stats report: %w", err)
	}
	return blob, nil
}

// Close closes the peer connection and releases resources
func (me *MediaEngine) Close() error {
	me.mu.Lock()
	defer me.mu.Unlock()

	if me.peerConnection != nil {
		if err := me.peerConnection.Close(); err != nil {
			return fmt.Errorf("failed to close peer connection: %w", err)
		}
	}
	return nil
}

// ---- SDP Helpers ----

// fixIncomingSDP patches incoming gateway SDP for Pion v4 compatibility:
// - Injects a=mid:0 after the first m= line if missing (Pion v4 requires mid)
// - Adds a=group:BUNDLE 0 at session level if missing
func fixIncomingSDP(sdp string) string {
	lines := strings.Split(sdp, "\r\n")
	result := make([]string, 0, len(lines)+2)
	hasMid := false
	hasBundle := false
	inMedia := false

	for _, line := range lines {
		if strings.HasPrefix(line, "a=mid:") {
			hasMid = true
		}
		if strings.HasPrefix(line, "a=group:BUNDLE") {
			hasBundle = true
		}
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "m=") {
			if !inMedia && !hasBundle {
				result = append(result, "a=group:BUNDLE 0")
			}
			inMedia = true
			result = append(result, line)
			if !hasMid {
				result = append(result, "a=mid:0")
			}
			continue
		}
		result = append(result, line)
	}

	return strings.Join(result, "\r\n")
}

// cleanOutgoingSDP strips attributes SIP voice gateways do not understand:
// IPv6 candidates, rtcp-fb, and RTP header extension declarations.
func cleanOutgoingSDP(sdp string) string {
	lines := strings.Split(sdp, "\r\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, "a=candidate:") {
			parts := strings.Fields(line)
			if len(parts) >= 5 && strings.Contains(parts[4], ":") {
				continue
			}
		}
		if strings.HasPrefix(line, "a=rtcp-fb:") {
			continue
		}
		if strings.HasPrefix(line, "a=extmap:") {
			continue
		}
		if strings.HasPrefix(line, "a=extmap-allow-mixed") {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\r\n")
}

// holdSDP rewrites the media direction attribute for hold/resume
// renegotiation. When hold is true the audio section becomes sendonly,
// otherwise sendrecv.
func holdSDP(sdp string, hold bool) string {
	want := "a=sendrecv"
	if hold {
		want = "a=sendonly"
	}

	lines := strings.Split(sdp, "\r\n")
	replaced := false
	for i, line := range lines {
		switch line {
		case "a=sendrecv", "a=sendonly", "a=recvonly", "a=inactive":
			lines[i] = want
			replaced = true
		}
	}
	if !replaced {
		// Append after the first m= line when no direction attribute exists.
		for i, line := range lines {
			if strings.HasPrefix(line, "m=") {
				rest := append([]string{want}, lines[i+1:]...)
				lines = append(lines[:i+1], rest...)
				break
			}
		}
	}
	return strings.Join(lines, "\r\n")
}
