/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package webapi

import (
	"context"
	"fmt"
	"net/http"
)

// WebRTCConfig is the per-user signaling configuration stored on the backend.
type WebRTCConfig struct {
	ID               string `json:"id,omitempty"`
	UserID           string `json:"user_id,omitempty"`
	WebsocketURI     string `json:"websocket_uri"`
	SIPUsername      string `json:"sip_username"`
	SIPPassword      string `json:"sip_password"`
	UDPServerAddress string `json:"udp_server_address,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	Realm            string `json:"realm"`
	HA1Password      string `json:"ha1_password,omitempty"`
	STUNServers      string `json:"stun_servers,omitempty"`
	TURNServers      string `json:"turn_servers,omitempty"`
}

// saveConfigResponse wraps the saved configuration returned by the backend.
type saveConfigResponse struct {
	Message       string        `json:"message"`
	Configuration *WebRTCConfig `json:"configuration"`
}

// FetchWebRTCConfig retrieves the authenticated user's signaling
// configuration. Returns a NotFoundError when none has been saved yet.
func (c *Client) FetchWebRTCConfig(ctx context.Context) (*WebRTCConfig, error) {
	resp, err := c.Request(ctx, http.MethodGet, "webrtc/config", nil, nil)
	if err != nil {
		return nil, err
	}

	var cfg WebRTCConfig
	if err := ParseResponse(resp, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveWebRTCConfig creates or updates the authenticated user's signaling
// configuration and returns the stored copy.
func (c *Client) SaveWebRTCConfig(ctx context.Context, cfg *WebRTCConfig) (*WebRTCConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.WebsocketURI == "" || cfg.SIPUsername == "" || cfg.SIPPassword == "" {
		return nil, fmt.Errorf("websocket_uri, sip_username, and sip_password are required")
	}

	resp, err := c.Request(ctx, http.MethodPost, "webrtc/config", nil, cfg)
	if err != nil {
		return nil, err
	}

	var saved saveConfigResponse
	if err := ParseResponse(resp, &saved); err != nil {
		return nil, err
	}
	if saved.Configuration == nil {
		return nil, fmt.Errorf("save config response missing configuration")
	}
	return saved.Configuration, nil
}
