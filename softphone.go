/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package softphone is the top-level client tying the backend API and
// the phone together: log in, load the stored signaling configuration,
// and register, with call statistics flowing back to the backend.
package softphone

import (
	"context"
	"fmt"
	"sync"

	"github.com/tejzpr/softphone-go/phone"
	"github.com/tejzpr/softphone-go/webapi"
)

// Client is the top-level softphone client.
type Client struct {
	// Core client for the backend API
	api *webapi.Client

	// Phone options applied on first use; nil uses the defaults.
	phoneOpts *phone.Options

	// Mutex for thread-safe lazy initialization of the phone
	phoneMu     sync.Mutex
	phoneClient *phone.Phone
}

// NewClient creates a softphone client for the given backend. config may
// be nil for the default local backend; phoneOpts may be nil for the
// default SIP engine and ring cue.
func NewClient(config *webapi.Config, phoneOpts *phone.Options) (*Client, error) {
	api, err := webapi.NewClient(config)
	if err != nil {
		return nil, err
	}
	return &Client{
		api:       api,
		phoneOpts: phoneOpts,
	}, nil
}

// API returns the backend API client.
func (c *Client) API() *webapi.Client {
	return c.api
}

// Phone returns the phone, creating it on first use. Statistics submit
// through the API client.
func (c *Client) Phone() *phone.Phone {
	c.phoneMu.Lock()
	defer c.phoneMu.Unlock()
	if c.phoneClient == nil {
		opts := phone.Options{}
		if c.phoneOpts != nil {
			opts = *c.phoneOpts
		}
		if opts.StatsSubmitter == nil {
			opts.StatsSubmitter = c.api
		}
		c.phoneClient = phone.New(&opts)
	}
	return c.phoneClient
}

// Connect logs into the backend, loads the user's stored signaling
// configuration, and brings the phone up. Registration proceeds
// asynchronously; watch the phone's events for the outcome.
func (c *Client) Connect(ctx context.Context, username, password string) error {
	if _, err := c.api.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	cfg, err := c.api.FetchWebRTCConfig(ctx)
	if err != nil {
		if webapi.IsNotFound(err) {
			return fmt.Errorf("no signaling configuration saved for this account: %w", err)
		}
		return fmt.Errorf("load signaling configuration: %w", err)
	}

	c.Phone().Initialize(phone.ConfigFromWebRTC(cfg), phone.AuthAccessors{
		Token:  c.api.TokenFunc(),
		UserID: c.api.UserIDFunc(),
	})
	return nil
}

// Disconnect shuts the phone down and clears the backend session.
func (c *Client) Disconnect() {
	c.phoneMu.Lock()
	p := c.phoneClient
	c.phoneMu.Unlock()
	if p != nil {
		p.Shutdown()
	}
	c.api.Logout()
}
