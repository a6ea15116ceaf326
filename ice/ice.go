/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package ice turns the backend's textual STUN/TURN configuration into
// pion ICE server entries.
package ice

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// DefaultServers returns the fallback ICE server list used when the
// resolved configuration is empty.
func DefaultServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
}

// Resolve parses the comma-separated STUN URL list and the comma-separated
// TURN entry list into ICE server entries.
//
// STUN entries are plain URLs and pass through unchanged. TURN entries may
// embed credentials as "turn:user:pass@host:port" or, scheme-less, as
// "user:pass@host:port"; the credentials are split out and the URL is
// rebuilt without them. An entry with a username but no credential keeps
// the username only; an entry without an "@" is treated as a
// credential-less URL.
//
// Both inputs empty yields an empty slice — the caller decides whether to
// substitute DefaultServers.
func Resolve(stunServers, turnServers string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer

	if stunServers != "" {
		for _, u := range strings.Split(stunServers, ",") {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
		}
	}

	if turnServers != "" {
		for _, entry := range strings.Split(turnServers, ",") {
			entry = strings.TrimSpace(entry)
			if entry == "" {
				continue
			}
			servers = append(servers, parseTURNEntry(entry))
		}
	}

	return servers
}

func parseTURNEntry(entry string) webrtc.ICEServer {
	at := strings.Index(entry, "@")
	if at < 0 {
		return webrtc.ICEServer{URLs: []string{entry}}
	}

	// Everything before "@" is "[scheme:]user[:pass]", everything after
	// is the host the URL is rebuilt around. Only a recognized scheme is
	// stripped — a scheme-less "user:pass@host" keeps both parts.
	head := entry[:at]
	host := entry[at+1:]

	scheme := "turn:"
	creds := head
	switch {
	case strings.HasPrefix(head, "turn:"):
		creds = head[len("turn:"):]
	case strings.HasPrefix(head, "turns:"):
		scheme = "turns:"
		creds = head[len("turns:"):]
	}

	server := webrtc.ICEServer{URLs: []string{scheme + host}}
	if parts := strings.Split(creds, ":"); len(parts) == 2 {
		server.Username = parts[0]
		server.Credential = parts[1]
	} else {
		server.Username = parts[0]
	}
	return server
}
