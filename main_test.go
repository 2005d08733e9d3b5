package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/client"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/api"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/auth"
	"github.com/FranklinSitienei/Sifas-Heart-Foundation-sub001/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestIntegration(t *testing.T) {
	dbFile := filepath.Join(t.TempDir(), "integration_test.db")

	adminAddr := "127.0.0.1:18881"
	apiAddr := "127.0.0.1:18880"
	apiBase := "http://" + apiAddr

	_ = os.Setenv("SIFAS_DB", dbFile)
	_ = os.Setenv("ADMIN_ADDR", adminAddr)
	_ = os.Setenv("API_ADDR", apiAddr)
	_ = os.Setenv("AUTH_SECRET", "very-secure-test-secret")
	defer func() {
		_ = os.Unsetenv("SIFAS_DB")
		_ = os.Unsetenv("ADMIN_ADDR")
		_ = os.Unsetenv("API_ADDR")
		_ = os.Unsetenv("AUTH_SECRET")
	}()

	// Start server in background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := run(ctx, "", false); err != nil && err != context.Canceled {
			t.Errorf("Server error: %v", err)
		}
	}()

	waitForServer(t, fmt.Sprintf("http://%s/admin/conversations", adminAddr), 20)

	httpc := &http.Client{}

	// Step 1: Create donor and support accounts via the admin API
	donor := addUserViaAdmin(t, httpc, adminAddr, api.AddUserRequest{
		Username:    "donor1",
		DisplayName: "Donor One",
	})
	support := addUserViaAdmin(t, httpc, adminAddr, api.AddUserRequest{
		Username: "support",
		Role:     models.RoleAdmin,
	})

	// Duplicate username is a conflict.
	dupBody, _ := json.Marshal(api.AddUserRequest{Username: "donor1"})
	respDup, err := httpc.Post(fmt.Sprintf("http://%s/admin/users", adminAddr), "application/json", bytes.NewBuffer(dupBody))
	require.NoError(t, err)
	_ = respDup.Body.Close()
	require.Equal(t, http.StatusConflict, respDup.StatusCode)

	// Step 2: Login both
	donorToken := login(t, httpc, apiBase, donor.Username, donor.Password)
	supportToken := login(t, httpc, apiBase, support.Username, support.Password)

	// Step 3: /api/me resolves the donor identity
	var me models.Participant
	getJSON(t, httpc, apiBase+"/api/me", donorToken, &me)
	require.Equal(t, donor.UserID, me.ID)
	require.Equal(t, models.RoleUser, me.Role)
	require.Equal(t, "Donor One", me.DisplayName)

	// Step 4: Donor connects through the SDK. Start resolves the
	// identity, lazily creates the thread and opens the live session.
	donorClient := client.New(client.Config{
		Endpoint:        fmt.Sprintf("ws://%s/api/chat", apiAddr),
		APIBase:         apiBase,
		Token:           donorToken,
		PollingInterval: 100 * time.Millisecond,
	})
	require.NoError(t, donorClient.Start(ctx))
	defer donorClient.Stop()

	waitForCondition(t, func() bool { return donorClient.Store.Status() == client.StatusConnected })
	convID := donorClient.ConversationID()
	require.NotEmpty(t, convID)

	// Step 5: Donor sends two messages while no admin is online. Both
	// persist and echo back in send order with server-assigned seqs.
	require.NoError(t, donorClient.Session.SendMessage(support.UserID, "hello", ""))
	require.NoError(t, donorClient.Session.SendMessage(support.UserID, "I need help with my donation", ""))

	waitForCondition(t, func() bool { return len(donorClient.Store.Snapshot().Messages) == 2 })
	snap := donorClient.Store.Snapshot()
	require.Equal(t, "hello", snap.Messages[0].Text)
	require.Equal(t, int64(1), snap.Messages[0].Seq)
	require.Equal(t, "I need help with my donation", snap.Messages[1].Text)
	require.Equal(t, int64(2), snap.Messages[1].Seq)
	require.Equal(t, 0, snap.Unread, "own echoes must not count as unread")

	// Step 6: The admin inbox shows the thread, and the snapshot holds
	// the offline-delivered history.
	var inbox []models.Conversation
	getJSON(t, httpc, fmt.Sprintf("http://%s/admin/conversations", adminAddr), "", &inbox)
	require.Len(t, inbox, 1)
	require.Equal(t, convID, inbox[0].ID)
	require.Equal(t, donor.UserID, inbox[0].UserID)

	var conv models.Conversation
	getJSON(t, httpc, apiBase+"/api/conversations/"+convID, supportToken, &conv)
	require.Len(t, conv.Messages, 2)
	require.Equal(t, "hello", conv.Messages[0].Text)

	// Unauthenticated snapshot fetches are rejected.
	respAnon, err := httpc.Get(apiBase + "/api/conversations/" + convID)
	require.NoError(t, err)
	_ = respAnon.Body.Close()
	require.Equal(t, http.StatusUnauthorized, respAnon.StatusCode)

	// Step 7: Admin connects over a raw socket and replies.
	header := http.Header{}
	header.Set("token", supportToken)
	adminConn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/api/chat", apiAddr), header)
	require.NoError(t, err)
	defer func() { _ = adminConn.Close() }()

	require.NoError(t, adminConn.WriteJSON(models.ClientEvent{
		Type:     models.ClientEventRegister,
		Identity: support.UserID,
		Role:     models.RoleAdmin,
	}))
	require.NoError(t, adminConn.WriteJSON(models.ClientEvent{
		Type: models.ClientEventSend,
		To:   donor.UserID,
		Text: "Happy to help!",
	}))

	// The admin gets its own echo with the next seq.
	_ = adminConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var echo models.ServerEvent
	require.NoError(t, adminConn.ReadJSON(&echo))
	require.Equal(t, models.ServerEventNewMessage, echo.Type)
	require.NotNil(t, echo.Message)
	require.Equal(t, int64(3), echo.Message.Seq)

	// The donor receives it live and counts it unread.
	waitForCondition(t, func() bool { return len(donorClient.Store.Snapshot().Messages) == 3 })
	snap = donorClient.Store.Snapshot()
	require.Equal(t, "Happy to help!", snap.Messages[2].Text)
	require.Equal(t, models.RoleAdmin, snap.Messages[2].SenderRole)
	require.Equal(t, 1, snap.Unread)

	donorClient.MarkRead()
	require.Equal(t, 0, donorClient.Store.Snapshot().Unread)

	// Step 8: Typing indicator flows admin -> donor.
	require.NoError(t, adminConn.WriteJSON(models.ClientEvent{
		Type:     models.ClientEventTyping,
		To:       donor.UserID,
		IsTyping: true,
	}))
	waitForCondition(t, func() bool { return donorClient.Store.Snapshot().Typing })

	// Step 9: First admin engagement claimed the conversation.
	getJSON(t, httpc, apiBase+"/api/conversations/"+convID, supportToken, &conv)
	require.Equal(t, support.UserID, conv.AdminID)

	// Step 10: Mark the thread complex from the dashboard.
	respComplex, err := httpc.Post(fmt.Sprintf("http://%s/admin/conversations/%s/complex", adminAddr, convID), "application/json", bytes.NewBufferString(`{"complex":true}`))
	require.NoError(t, err)
	_ = respComplex.Body.Close()
	require.Equal(t, http.StatusNoContent, respComplex.StatusCode)

	getJSON(t, httpc, fmt.Sprintf("http://%s/admin/conversations", adminAddr), "", &inbox)
	require.Len(t, inbox, 1)
	require.True(t, inbox[0].Complex)

	// Step 11: Logoff revokes the donor token.
	reqOff, _ := http.NewRequest("POST", apiBase+"/api/logoff", nil)
	reqOff.Header.Set("token", donorToken)
	reqOff.Header.Set("Origin", apiBase)
	respOff, err := httpc.Do(reqOff)
	require.NoError(t, err)
	_ = respOff.Body.Close()
	require.Equal(t, http.StatusOK, respOff.StatusCode)

	reqMe, _ := http.NewRequest("GET", apiBase+"/api/me", nil)
	reqMe.Header.Set("token", donorToken)
	respMe, err := httpc.Do(reqMe)
	require.NoError(t, err)
	_ = respMe.Body.Close()
	require.Equal(t, http.StatusUnauthorized, respMe.StatusCode)
}

func addUserViaAdmin(t *testing.T, httpc *http.Client, adminAddr string, req api.AddUserRequest) api.AddUserResponse {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := httpc.Post(fmt.Sprintf("http://%s/admin/users", adminAddr), "application/json", bytes.NewBuffer(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out api.AddUserResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	require.NotEmpty(t, out.UserID)
	require.NotEmpty(t, out.Password)
	return out
}

func login(t *testing.T, httpc *http.Client, apiBase, username, password string) string {
	t.Helper()

	body, err := json.Marshal(auth.LoginRequest{Username: username, Password: password})
	require.NoError(t, err)

	req, err := http.NewRequest("POST", apiBase+"/api/login", bytes.NewBuffer(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", apiBase)

	resp, err := httpc.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var loginResp auth.LoginResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	require.True(t, loginResp.Success)
	require.NotEmpty(t, loginResp.Token)
	return loginResp.Token
}

func getJSON(t *testing.T, httpc *http.Client, url, token string, out any) {
	t.Helper()

	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("token", token)
	}

	resp, err := httpc.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func waitForServer(t *testing.T, urlStr string, retries int) {
	t.Helper()
	httpc := &http.Client{Timeout: 500 * time.Millisecond}

	for i := 0; i < retries; i++ {
		resp, err := httpc.Get(urlStr)
		if err == nil {
			_ = resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("Server failed to start at %s after %d retries", urlStr, retries)
}
