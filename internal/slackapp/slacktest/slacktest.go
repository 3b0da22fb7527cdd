// Package slacktest fakes the parts of the Slack Web API kbbot calls and
// signs Events API requests the way Slack does.
package slacktest

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

const (
	BotID     = "B0KBBOT"
	BotUserID = "U0KBBOT"

	// Channels MessageEvent posts to.
	DirectChannel = "D0DIRECT"
	PublicChannel = "C0GENERAL"
)

// Post is one chat.postMessage call received by the fake API.
type Post struct {
	Channel string
	Text    string
}

// API is a fake Slack Web API. Point the bot at URL + "/".
type API struct {
	*httptest.Server

	mu        sync.Mutex
	posts     []Post
	authCalls int
	// FailPosts makes chat.postMessage answer ok=false.
	FailPosts bool
	// FailAuth makes auth.test answer invalid_auth.
	FailAuth bool
}

func NewAPI() *API {
	a := &API{}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth.test", func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.authCalls++
		fail := a.FailAuth
		a.mu.Unlock()
		if fail {
			writeJSON(w, map[string]any{"ok": false, "error": "invalid_auth"})
			return
		}
		writeJSON(w, map[string]any{
			"ok": true, "team": "kbbot-test", "team_id": "T0TEST",
			"user": "kbbot", "user_id": BotUserID, "bot_id": BotID,
		})
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		a.mu.Lock()
		fail := a.FailPosts
		if !fail {
			a.posts = append(a.posts, Post{Channel: r.PostForm.Get("channel"), Text: r.PostForm.Get("text")})
		}
		a.mu.Unlock()
		if fail {
			writeJSON(w, map[string]any{"ok": false, "error": "channel_not_found"})
			return
		}
		writeJSON(w, map[string]any{"ok": true, "channel": r.PostForm.Get("channel"), "ts": "1700000000.000100"})
	})
	a.Server = httptest.NewServer(mux)
	return a
}

// Posts returns the messages posted so far.
func (a *API) Posts() []Post {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Post(nil), a.posts...)
}

func (a *API) SetFailPosts(fail bool) {
	a.mu.Lock()
	a.FailPosts = fail
	a.mu.Unlock()
}

func (a *API) SetFailAuth(fail bool) {
	a.mu.Lock()
	a.FailAuth = fail
	a.mu.Unlock()
}

// AuthCalls returns how many times auth.test was called.
func (a *API) AuthCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authCalls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Sign returns the v0 signature Slack would send for body at ts.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%d:", ts)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// NewRequest builds a signed Events API POST to target.
func NewRequest(secret, target string, body []byte) *http.Request {
	ts := time.Now().Unix()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Slack-Signature", Sign(secret, ts, body))
	return req
}

// MessageEvent builds an event_callback body carrying a message event.
func MessageEvent(eventID, channelType, text string) []byte {
	channel := PublicChannel
	if channelType == "im" {
		channel = DirectChannel
	}
	return Callback(eventID, map[string]any{
		"type":         "message",
		"channel":      channel,
		"channel_type": channelType,
		"user":         "U0ALICE",
		"text":         text,
		"ts":           "1700000000.000001",
		"event_ts":     "1700000000.000001",
	})
}

// Callback wraps inner in an event_callback envelope.
func Callback(eventID string, inner map[string]any) []byte {
	body, _ := json.Marshal(map[string]any{
		"token":      "legacy",
		"team_id":    "T0TEST",
		"api_app_id": "A0KBBOT",
		"type":       "event_callback",
		"event_id":   eventID,
		"event_time": 1700000000,
		"event":      inner,
	})
	return body
}

