// Package platform parses inbound chat-platform payloads into query contexts.
// Signature verification and outbound formatting live elsewhere.
package platform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xhad/askdocs/pkg/orchestrator"
)

type Kind int

const (
	// KindIgnored is a well-formed event that needs no answer.
	KindIgnored Kind = iota
	// KindChallenge asks the server to echo Challenge back.
	KindChallenge
	KindQuery
)

// Inbound is one parsed platform event.
type Inbound struct {
	Kind      Kind
	Challenge string
	EventType string
	EventID   string
	Query     orchestrator.PlatformQueryContext
	// Reason explains why an event was ignored.
	Reason string
}

type slackEnvelope struct {
	Type      string     `json:"type"`
	Challenge string     `json:"challenge"`
	TeamID    string     `json:"team_id"`
	EventID   string     `json:"event_id"`
	EventTime int64      `json:"event_time"`
	Event     slackEvent `json:"event"`
}

type slackEvent struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	User        string `json:"user"`
	BotID       string `json:"bot_id"`
	Text        string `json:"text"`
	Channel     string `json:"channel"`
	ChannelType string `json:"channel_type"`
	TS          string `json:"ts"`
	ThreadTS    string `json:"thread_ts"`
	ClientMsgID string `json:"client_msg_id"`
}

// ParseSlackEvent handles Events API payloads: url_verification and
// event_callback carrying app_mention or direct message events. Bot messages
// and edits are ignored.
func ParseSlackEvent(body []byte) (Inbound, error) {
	var env slackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Inbound{}, fmt.Errorf("decode slack payload: %w", err)
	}

	switch env.Type {
	case "url_verification":
		if env.Challenge == "" {
			return Inbound{}, fmt.Errorf("url_verification without challenge")
		}
		return Inbound{Kind: KindChallenge, Challenge: env.Challenge}, nil
	case "event_callback":
	default:
		return Inbound{Kind: KindIgnored, Reason: "unsupported payload type " + env.Type}, nil
	}

	ev := env.Event
	in := Inbound{EventType: ev.Type, EventID: env.EventID}
	if in.EventID == "" {
		in.EventID = ev.ClientMsgID
	}

	switch {
	case ev.Type != "app_mention" && ev.Type != "message":
		in.Reason = "unsupported event type " + ev.Type
		return in, nil
	case ev.BotID != "" || ev.Subtype == "bot_message":
		in.Reason = "bot message"
		return in, nil
	case ev.Subtype != "":
		in.Reason = "message subtype " + ev.Subtype
		return in, nil
	case ev.Type == "message" && ev.ChannelType != "im":
		// Channel messages arrive as app_mention when they address the bot.
		in.Reason = "channel message without mention"
		return in, nil
	case ev.User == "" || strings.TrimSpace(ev.Text) == "":
		in.Reason = "empty message"
		return in, nil
	}

	meta := map[string]string{"teamId": env.TeamID}
	if ev.ThreadTS != "" && ev.ThreadTS != ev.TS {
		meta[orchestrator.MetaParentContextID] = ev.ThreadTS
	}

	in.Kind = KindQuery
	in.Query = orchestrator.PlatformQueryContext{
		Platform:  orchestrator.PlatformSlack,
		UserID:    ev.User,
		ChannelID: ev.Channel,
		ThreadID:  firstNonEmpty(ev.ThreadTS, ev.TS),
		Query:     ev.Text,
		Metadata:  meta,
	}
	return in, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
