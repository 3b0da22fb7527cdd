// Package slackapp receives Slack Events API callbacks over HTTP and
// dispatches them to registered listeners.
package slackapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"kbbot/internal/domain"
	"kbbot/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Listener handles one event. A non-nil error turns into an HTTP 500.
type Listener func(ctx context.Context, ev domain.Event, say domain.Say) error

// Config configures an App.
type Config struct {
	BotToken      string
	SigningSecret string
	APIURL        string       // Slack Web API base, for tests
	HTTPClient    *http.Client // optional
	Logger        *slog.Logger
}

// App verifies, parses and routes incoming Slack requests.
type App struct {
	signingSecret string
	client        *slack.Client
	logger        *slog.Logger

	mu         sync.RWMutex
	listeners  map[string]Listener
	botID      string
	botUserID  string
	identified bool

	authMu sync.Mutex // serializes the lazy auth.test
}

func New(cfg Config) *App {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var opts []slack.Option
	if cfg.APIURL != "" {
		base := cfg.APIURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, slack.OptionAPIURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}
	return &App{
		signingSecret: cfg.SigningSecret,
		client:        slack.New(cfg.BotToken, opts...),
		logger:        cfg.Logger,
		listeners:     make(map[string]Listener),
	}
}

// Event registers fn for inner events of the given type, e.g. "message".
// A later registration for the same type replaces the earlier one.
func (a *App) Event(eventType string, fn Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners[eventType] = fn
}

// Init calls auth.test to learn the bot's own identity so its messages can
// be ignored.
func (a *App) Init(ctx context.Context) error {
	resp, err := a.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	a.SetIdentity(resp.BotID, resp.UserID)
	a.logger.Info("slack bot authenticated", "team", resp.Team, "user", resp.User, "user_id", resp.UserID)
	return nil
}

// SetIdentity records the bot's own IDs.
func (a *App) SetIdentity(botID, botUserID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botID = botID
	a.botUserID = botUserID
	a.identified = true
}

// identity returns the bot's own IDs. If Init has not run yet, the first
// caller runs auth.test; a failed call is retried on the next event.
func (a *App) identity(ctx context.Context) (string, string, error) {
	if botID, botUserID, ok := a.knownIdentity(); ok {
		return botID, botUserID, nil
	}

	a.authMu.Lock()
	defer a.authMu.Unlock()
	if botID, botUserID, ok := a.knownIdentity(); ok {
		return botID, botUserID, nil
	}
	if err := a.Init(ctx); err != nil {
		return "", "", err
	}
	botID, botUserID, _ := a.knownIdentity()
	return botID, botUserID, nil
}

func (a *App) knownIdentity() (botID, botUserID string, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.botID, a.botUserID, a.identified
}

// Say returns a Say that posts to channel.
func (a *App) Say(channel string) domain.Say {
	return func(ctx context.Context, text string) error {
		_, _, err := a.client.PostMessageContext(ctx, channel, slack.MsgOptionText(text, false))
		if err != nil {
			return fmt.Errorf("slack post to %s: %w", channel, err)
		}
		metrics.RepliesTotal.Inc()
		return nil
	}
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := a.verify(r.Header, body); err != nil {
		metrics.SignatureFailuresTotal.Inc()
		a.logger.Warn("slack request rejected", "err", err)
		writeJSONError(w, http.StatusUnauthorized, "invalid request")
		return
	}

	if isSSLCheck(r.Header, body) {
		w.WriteHeader(http.StatusOK)
		return
	}

	outer, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		a.handleUnparsed(r.Context(), w, body, err)
		return
	}

	switch outer.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, challenge.Challenge)

	case slackevents.CallbackEvent:
		cb, ok := outer.Data.(*slackevents.EventsAPICallbackEvent)
		if !ok || cb.InnerEvent == nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		var ev domain.Event
		if msg, ok := outer.InnerEvent.Data.(*slackevents.MessageEvent); ok {
			ev = fromMessage(msg)
			ev.HasText = hasText(*cb.InnerEvent)
		} else {
			ev = decodeInner(*cb.InnerEvent)
		}
		ev.ID, ev.TeamID = cb.EventID, cb.TeamID
		a.dispatch(r.Context(), w, ev)

	default:
		a.logger.Debug("slack outer event ignored", "type", outer.Type)
		w.WriteHeader(http.StatusOK)
	}
}

func (a *App) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, a.signingSecret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}

// handleUnparsed covers callbacks whose inner type slackevents does not
// know. They are still routed by type; anything else is malformed.
func (a *App) handleUnparsed(ctx context.Context, w http.ResponseWriter, body []byte, parseErr error) {
	var env struct {
		Type    string          `json:"type"`
		TeamID  string          `json:"team_id"`
		EventID string          `json:"event_id"`
		Event   json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(body, &env); err != nil || env.Type != slackevents.CallbackEvent || len(env.Event) == 0 {
		a.logger.Warn("slack request malformed", "err", parseErr)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	ev := decodeInner(env.Event)
	if ev.Type == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	ev.ID, ev.TeamID = env.EventID, env.TeamID
	a.dispatch(ctx, w, ev)
}

func (a *App) dispatch(ctx context.Context, w http.ResponseWriter, ev domain.Event) {
	metrics.EventsTotal.Inc()

	botID, botUserID, err := a.identity(ctx)
	if err != nil {
		metrics.ListenerErrorsTotal.Inc()
		a.logger.Error("slack identity unknown", "type", ev.Type, "event_id", ev.ID, "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	a.mu.RLock()
	fn, ok := a.listeners[ev.Type]
	a.mu.RUnlock()

	if isSelf(ev, botID, botUserID) {
		metrics.IgnoredEventsTotal.Inc()
		a.logger.Debug("skipping self event", "type", ev.Type, "event_id", ev.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !ok {
		metrics.UnhandledEventsTotal.Inc()
		a.logger.Warn("unhandled slack event", "type", ev.Type, "event_id", ev.ID)
		writeJSONError(w, http.StatusNotFound, "unhandled request")
		return
	}

	if err := fn(ctx, ev, a.Say(ev.Channel)); err != nil {
		metrics.ListenerErrorsTotal.Inc()
		a.logger.Error("slack listener failed", "type", ev.Type, "event_id", ev.ID, "channel", ev.Channel, "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func isSelf(ev domain.Event, botID, botUserID string) bool {
	if botID != "" && ev.BotID == botID {
		return true
	}
	return botUserID != "" && ev.User == botUserID
}

func fromMessage(msg *slackevents.MessageEvent) domain.Event {
	return domain.Event{
		Type:        msg.Type,
		SubType:     msg.SubType,
		Channel:     msg.Channel,
		ChannelType: msg.ChannelType,
		User:        msg.User,
		BotID:       msg.BotID,
		Text:        msg.Text,
		TimeStamp:   msg.TimeStamp,
		ThreadTS:    msg.ThreadTimeStamp,
	}
}

// decodeInner reads the common string fields of any inner event. Fields
// that are objects in some event types (user, channel) are left empty.
func decodeInner(raw json.RawMessage) domain.Event {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return domain.Event{}
	}
	str := func(key string) string {
		var s string
		json.Unmarshal(fields[key], &s)
		return s
	}
	text, ok := fields["text"]
	return domain.Event{
		Type:        str("type"),
		SubType:     str("subtype"),
		Channel:     str("channel"),
		ChannelType: str("channel_type"),
		User:        str("user"),
		BotID:       str("bot_id"),
		Text:        str("text"),
		HasText:     ok && string(text) != "null",
		TimeStamp:   str("ts"),
		ThreadTS:    str("thread_ts"),
	}
}

// hasText reports whether the inner event carries a top-level text field.
// Edits and deletions of messages do not.
func hasText(raw json.RawMessage) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false
	}
	text, ok := fields["text"]
	return ok && string(text) != "null"
}

func isSSLCheck(header http.Header, body []byte) bool {
	if !strings.HasPrefix(header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return false
	}
	form, err := url.ParseQuery(string(body))
	return err == nil && form.Get("ssl_check") == "1"
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
