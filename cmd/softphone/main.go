/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Command softphone is an interactive terminal softphone. It logs into
// the backend, loads the stored signaling configuration, registers over
// SIP, and drives calls from stdin commands.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tejzpr/softphone-go/phone"
	"github.com/tejzpr/softphone-go/webapi"
)

func main() {
	baseURL := flag.String("api", "http://localhost:3001/api", "backend API base URL")
	username := flag.String("user", "", "backend username")
	password := flag.String("pass", "", "backend password")
	register := flag.Bool("register", false, "create the account before logging in")
	flag.Parse()

	if *username == "" || *password == "" {
		log.Fatal("both -user and -pass are required")
	}

	client, err := webapi.NewClient(&webapi.Config{BaseURL: *baseURL})
	if err != nil {
		log.Fatalf("failed to create API client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *register {
		if _, err := client.SignUp(ctx, *username, *password); err != nil {
			log.Fatalf("registration failed: %v", err)
		}
		log.Printf("registered account %s", *username)
	} else if _, err := client.Login(ctx, *username, *password); err != nil {
		log.Fatalf("login failed: %v", err)
	}

	cfg, err := client.FetchWebRTCConfig(ctx)
	if err != nil {
		if webapi.IsNotFound(err) {
			log.Fatal("no signaling configuration saved for this account")
		}
		log.Fatalf("failed to load signaling configuration: %v", err)
	}

	p := phone.New(&phone.Options{StatsSubmitter: client})
	defer p.Shutdown()

	p.Events.On(string(phone.EventRegistered), func(any) {
		fmt.Println("* registered")
	})
	p.Events.On(string(phone.EventRegistrationFailed), func(data any) {
		fmt.Printf("* registration failed: %v\n", data)
	})
	p.Events.On(string(phone.EventIncomingCall), func(data any) {
		info := data.(*phone.IncomingCallInfo)
		name := info.DisplayName
		if name == "" {
			name = info.URI
		}
		fmt.Printf("* incoming call from %s (answer/hangup)\n", name)
	})
	p.Events.On(string(phone.EventCallPhaseChanged), func(data any) {
		fmt.Printf("* call phase: %v\n", data)
	})
	p.Events.On(string(phone.EventCallEnded), func(any) {
		fmt.Println("* call ended")
	})

	p.Initialize(phone.ConfigFromWebRTC(cfg), phone.AuthAccessors{
		Token:  client.TokenFunc(),
		UserID: client.UserIDFunc(),
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		p.Shutdown()
		os.Exit(0)
	}()

	fmt.Println("commands: call <target> | answer | hangup | mute | hold | status | quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		switch cmd {
		case "call":
			if err := p.Originate(arg); err != nil {
				fmt.Printf("call failed: %v\n", err)
			}
		case "answer":
			if err := p.AnswerIncoming(); err != nil {
				fmt.Printf("answer failed: %v\n", err)
			}
		case "hangup":
			if err := p.TerminateCurrent(); err != nil {
				fmt.Printf("hangup failed: %v\n", err)
			}
		case "mute":
			p.ToggleMute()
			fmt.Printf("muted: %v\n", p.IsMuted())
		case "hold":
			p.ToggleHold()
			fmt.Printf("on hold: %v\n", p.IsOnHold())
		case "status":
			fmt.Printf("connectivity=%s registration=%s phase=%s\n",
				p.Connectivity(), p.RegistrationStatus(), p.CallPhase())
			if err := p.RegistrationError(); err != "" {
				fmt.Printf("registration error: %s\n", err)
			}
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}
