/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package server is the backend HTTP API for the softphone: account
// registration and login, per-user signaling configuration, and call
// statistics ingestion, persisted in SQLite and exposed over echo with
// JWT bearer authentication.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tejzpr/softphone-go/webapi"
)

// Logger matches the stdlib log.Printf shape.
type Logger interface {
	Printf(format string, v ...any)
}

// Config holds the server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":3001".
	Addr string

	// DatabasePath is the SQLite file path, ":memory:" for ephemeral.
	DatabasePath string

	// JWTSecret signs session tokens. Required.
	JWTSecret string

	// Logger for server operations. Nil uses log.Default().
	Logger Logger
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":3001",
		DatabasePath: "softphone.db",
	}
}

// Server is the backend API server.
type Server struct {
	cfg    *Config
	logger Logger
	store  *Store
	tokens *TokenManager
	echo   *echo.Echo
}

// NewServer builds the server, opens the store, and wires the routes.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	store, err := OpenStore(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		tokens: NewTokenManager([]byte(cfg.JWTSecret)),
		echo:   echo.New(),
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	e := s.echo
	e.Use(middleware.Recover())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/api/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	e.POST("/api/auth/register", s.handleRegister)
	e.POST("/api/auth/login", s.handleLogin)

	authed := e.Group("/api", s.requireAuth)
	authed.GET("/webrtc/config", s.handleGetConfig)
	authed.POST("/webrtc/config", s.handleSaveConfig)
	authed.POST("/callstats", s.handleSubmitCallStats)
	authed.GET("/callstats", s.handleListCallStats)
}

// Start runs the server until Shutdown.
func (s *Server) Start() error {
	s.logger.Printf("server: listening on %s", s.cfg.Addr)
	err := s.echo.Start(s.cfg.Addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the HTTP listener and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if cerr := s.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// Handler exposes the route tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func fail(c echo.Context, code int, message string) error {
	return c.JSON(code, echo.Map{"message": message})
}

// ---- Auth middleware ----

const claimsKey = "auth-claims"

// requireAuth validates the bearer token and stashes its claims on the
// request context.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return fail(c, http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := s.tokens.Parse(token)
		if err != nil {
			return fail(c, http.StatusUnauthorized, "invalid or expired token")
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

func requestClaims(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}

// ---- Auth handlers ----

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		authAttempts.WithLabelValues("register", "invalid").Inc()
		return fail(c, http.StatusBadRequest, "username and password are required")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to process password")
	}

	user, err := s.store.CreateUser(c.Request().Context(), req.Username, hash)
	if errors.Is(err, ErrDuplicate) {
		authAttempts.WithLabelValues("register", "duplicate").Inc()
		return fail(c, http.StatusConflict, "username already exists")
	}
	if err != nil {
		s.logger.Printf("server: create user failed: %v", err)
		return fail(c, http.StatusInternalServerError, "failed to create user")
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to issue token")
	}

	authAttempts.WithLabelValues("register", "success").Inc()
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "user registered",
		"token":   token,
		"user": webapi.User{
			ID:        user.ID,
			Username:  user.Username,
			CreatedAt: user.CreatedAt,
		},
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.Username == "" || req.Password == "" {
		authAttempts.WithLabelValues("login", "invalid").Inc()
		return fail(c, http.StatusBadRequest, "username and password are required")
	}

	user, err := s.store.UserByUsername(c.Request().Context(), req.Username)
	if errors.Is(err, ErrNotFound) || (err == nil && !CheckPassword(user.PasswordHash, req.Password)) {
		authAttempts.WithLabelValues("login", "rejected").Inc()
		return fail(c, http.StatusUnauthorized, "invalid username or password")
	}
	if err != nil {
		s.logger.Printf("server: login lookup failed: %v", err)
		return fail(c, http.StatusInternalServerError, "login failed")
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed to issue token")
	}

	authAttempts.WithLabelValues("login", "success").Inc()
	return c.JSON(http.StatusOK, echo.Map{
		"message": "login successful",
		"token":   token,
		"user": webapi.User{
			ID:        user.ID,
			Username:  user.Username,
			CreatedAt: user.CreatedAt,
		},
	})
}

// ---- WebRTC config handlers ----

func configToWire(cfg *StoredConfig) *webapi.WebRTCConfig {
	return &webapi.WebRTCConfig{
		ID:               cfg.ID,
		UserID:           cfg.UserID,
		WebsocketURI:     cfg.WebsocketURI,
		SIPUsername:      cfg.SIPUsername,
		SIPPassword:      cfg.SIPPassword,
		UDPServerAddress: cfg.UDPServerAddress,
		DisplayName:      cfg.DisplayName,
		Realm:            cfg.Realm,
		HA1Password:      cfg.HA1Password,
		STUNServers:      cfg.STUNServers,
		TURNServers:      cfg.TURNServers,
	}
}

func (s *Server) handleGetConfig(c echo.Context) error {
	claims := requestClaims(c)
	cfg, err := s.store.ConfigByUserID(c.Request().Context(), claims.UserID)
	if errors.Is(err, ErrNotFound) {
		return fail(c, http.StatusNotFound, "no configuration saved")
	}
	if err != nil {
		s.logger.Printf("server: config lookup failed: %v", err)
		return fail(c, http.StatusInternalServerError, "failed to load configuration")
	}
	return c.JSON(http.StatusOK, configToWire(cfg))
}

func (s *Server) handleSaveConfig(c echo.Context) error {
	claims := requestClaims(c)

	var req webapi.WebRTCConfig
	if err := c.Bind(&req); err != nil {
		configSaves.WithLabelValues("invalid").Inc()
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.WebsocketURI == "" || req.SIPUsername == "" || req.SIPPassword == "" {
		configSaves.WithLabelValues("invalid").Inc()
		return fail(c, http.StatusBadRequest, "websocket_uri, sip_username, and sip_password are required")
	}

	saved, err := s.store.SaveConfig(c.Request().Context(), &StoredConfig{
		UserID:           claims.UserID,
		WebsocketURI:     req.WebsocketURI,
		SIPUsername:      req.SIPUsername,
		SIPPassword:      req.SIPPassword,
		UDPServerAddress: req.UDPServerAddress,
		DisplayName:      req.DisplayName,
		Realm:            req.Realm,
		HA1Password:      req.HA1Password,
		STUNServers:      req.STUNServers,
		TURNServers:      req.TURNServers,
	})
	if err != nil {
		s.logger.Printf("server: config save failed: %v", err)
		configSaves.WithLabelValues("error").Inc()
		return fail(c, http.StatusInternalServerError, "failed to save configuration")
	}

	configSaves.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, echo.Map{
		"message":       "configuration saved",
		"configuration": configToWire(saved),
	})
}

// ---- Call statistics handlers ----

func (s *Server) handleSubmitCallStats(c echo.Context) error {
	claims := requestClaims(c)

	var req webapi.CallStatisticsRecord
	if err := c.Bind(&req); err != nil {
		statsSubmissions.WithLabelValues("invalid").Inc()
		return fail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.CallID == "" || req.StartTime == "" || req.EndTime == "" {
		statsSubmissions.WithLabelValues("invalid").Inc()
		return fail(c, http.StatusBadRequest, "call_id, start_time, and end_time are required")
	}
	// A record may only be filed for the authenticated user.
	if req.UserID != "" && req.UserID != claims.UserID {
		statsSubmissions.WithLabelValues("forbidden").Inc()
		return fail(c, http.StatusForbidden, "user_id does not match the authenticated user")
	}

	blob, err := json.Marshal(req.StatsBlob)
	if err != nil {
		statsSubmissions.WithLabelValues("invalid").Inc()
		return fail(c, http.StatusBadRequest, "invalid stats_blob")
	}

	err = s.store.InsertCallStats(c.Request().Context(), &StoredCallStats{
		CallID:          req.CallID,
		UserID:          claims.UserID,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		DurationSeconds: req.DurationSeconds,
		StatsBlob:       blob,
	})
	if errors.Is(err, ErrDuplicate) {
		statsSubmissions.WithLabelValues("duplicate").Inc()
		return fail(c, http.StatusConflict, "statistics already recorded for this call")
	}
	if err != nil {
		s.logger.Printf("server: call stats insert failed: %v", err)
		statsSubmissions.WithLabelValues("error").Inc()
		return fail(c, http.StatusInternalServerError, "failed to store statistics")
	}

	statsSubmissions.WithLabelValues("success").Inc()
	callDurationSeconds.Observe(float64(req.DurationSeconds))
	return c.JSON(http.StatusCreated, echo.Map{"message": "statistics recorded"})
}

func (s *Server) handleListCallStats(c echo.Context) error {
	claims := requestClaims(c)

	records, err := s.store.CallStatsByUserID(c.Request().Context(), claims.UserID)
	if err != nil {
		s.logger.Printf("server: call stats list failed: %v", err)
		return fail(c, http.StatusInternalServerError, "failed to load statistics")
	}

	out := make([]echo.Map, 0, len(records))
	for _, rec := range records {
		out = append(out, echo.Map{
			"call_id":          rec.CallID,
			"user_id":          rec.UserID,
			"start_time":       rec.StartTime,
			"end_time":         rec.EndTime,
			"duration_seconds": rec.DurationSeconds,
			"stats_blob":       rec.StatsBlob,
			"created_at":       rec.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, out)
}
