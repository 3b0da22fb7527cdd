package domain

import "context"

// Channel types Slack reports on message events.
const (
	ChannelTypeIM      = "im"
	ChannelTypeMPIM    = "mpim"
	ChannelTypeChannel = "channel"
	ChannelTypeGroup   = "group"
)

// Event is the part of a Slack Events API callback that kbbot routes on.
type Event struct {
	ID          string // outer event_id
	TeamID      string
	Type        string
	SubType     string
	Channel     string
	ChannelType string
	User        string
	BotID       string
	Text        string
	HasText     bool // false when the event had no text field at all
	TimeStamp   string
	ThreadTS    string
}

// IsDirectMessage reports whether the event arrived on a one-to-one channel
// between a user and the bot.
func (e Event) IsDirectMessage() bool {
	return e.ChannelType == ChannelTypeIM
}

// Say posts text to the channel the current event came from.
type Say func(ctx context.Context, text string) error
