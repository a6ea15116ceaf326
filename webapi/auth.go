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

// User represents an authenticated backend user.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at,omitempty"`
}

// credentialsRequest is the JSON body for login and register.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// authResponse is the JSON body returned by login and register.
type authResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// Login authenticates against the backend and stores the returned session
// token and user identity on the client.
func (c *Client) Login(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	resp, err := c.Request(ctx, http.MethodPost, "auth/login", nil, &credentialsRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var auth authResponse
	if err := ParseResponse(resp, &auth); err != nil {
		return nil, err
	}
	if auth.Token == "" {
		return nil, fmt.Errorf("login response missing token")
	}

	c.setSession(auth.Token, auth.User)
	return &auth.User, nil
}

// SignUp creates a new backend account. On success the backend also issues
// a session token, which is stored on the client the same way Login does.
func (c *Client) SignUp(ctx context.Context, username, password string) (*User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("username and password are required")
	}

	resp, err := c.Request(ctx, http.MethodPost, "auth/register", nil, &credentialsRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var auth authResponse
	if err := ParseResponse(resp, &auth); err != nil {
		return nil, err
	}
	if auth.Token == "" {
		return nil, fmt.Errorf("register response missing token")
	}

	c.setSession(auth.Token, auth.User)
	return &auth.User, nil
}

// Logout clears the stored session token and user identity.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.userID = ""
	c.username = ""
}

func (c *Client) setSession(token string, user User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.userID = user.ID
	c.username = user.Username
}

// Token returns the current session token, or "" when not logged in.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UserID returns the current user's ID, or "" when not logged in.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Username returns the current user's name, or "" when not logged in.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// TokenFunc returns an accessor that always reads the client's current
// session token. Components that submit data after a session may have
// been torn down hold this accessor instead of a copied value.
func (c *Client) TokenFunc() func() string {
	return c.Token
}

// UserIDFunc returns an accessor that always reads the client's current
// user ID.
func (c *Client) UserIDFunc() func() string {
	return c.UserID
}
