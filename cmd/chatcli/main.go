// chatcli is a terminal client for the support chat, mainly used for
// manual testing against a running server.
//
// Usage:
//
//	chatcli -api http://localhost:8080 -user alice -pass secret -to <admin-id>
//
// Lines typed on stdin are sent as messages. A saved session token in
// ~/.sifas-chat/session is reused when -user is not given.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/client"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/auth"
)

func main() {
	apiBase := flag.String("api", "http://localhost:8080", "API base URL")
	user := flag.String("user", "", "Username to log in with (omit to reuse a saved session)")
	pass := flag.String("pass", "", "Password")
	to := flag.String("to", "", "Target participant id to send messages to")
	flag.Parse()

	if err := run(*apiBase, *user, *pass, *to); err != nil {
		log.Fatal(err)
	}
}

func sessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sifas-chat-session"
	}
	return filepath.Join(home, ".sifas-chat", "session")
}

func run(apiBase, user, pass, to string) error {
	token, err := resolveToken(apiBase, user, pass)
	if err != nil {
		return err
	}

	c := client.New(client.Config{
		Endpoint: strings.Replace(apiBase, "http", "ws", 1) + "/api/chat",
		APIBase:  apiBase,
		Token:    token,
	})

	c.Store.SetOnChange(func() {
		snap := c.Store.Snapshot()
		if n := len(snap.Messages); n > 0 {
			last := snap.Messages[n-1]
			fmt.Printf("[%s] %s%s\n", last.SenderRole, last.Text, last.Emoji)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	fmt.Printf("Connected as %s (%s). Type to send, Ctrl-D to quit.\n",
		c.Identity().DisplayName, c.Identity().Role)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := c.Session.SendMessage(to, text, ""); err != nil {
			fmt.Printf("send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

// resolveToken logs in when credentials are given, otherwise restores
// the saved session.
func resolveToken(apiBase, user, pass string) (string, error) {
	if user == "" {
		sess, ok, err := client.LoadSession(sessionPath())
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no saved session; log in with -user and -pass")
		}
		return sess.Token, nil
	}

	body, err := json.Marshal(auth.LoginRequest{Username: user, Password: pass})
	if err != nil {
		return "", err
	}

	resp, err := http.Post(apiBase+"/api/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var loginResp auth.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if !loginResp.Success {
		return "", fmt.Errorf("login failed: %s", loginResp.Message)
	}

	if err := client.SaveSession(sessionPath(), client.SavedSession{Token: loginResp.Token}); err != nil {
		log.Printf("warning: could not save session: %v", err)
	}
	return loginResp.Token, nil
}
