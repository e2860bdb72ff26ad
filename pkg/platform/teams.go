package platform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/askdocs/pkg/orchestrator"
)

type teamsActivity struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Text       string `json:"text"`
	TextFormat string `json:"textFormat"`
	ReplyToID  string `json:"replyToId"`
	From       struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"from"`
	Conversation struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		ConversationType string `json:"conversationType"`
	} `json:"conversation"`
	ChannelData struct {
		Channel struct {
			Name string `json:"name"`
		} `json:"channel"`
	} `json:"channelData"`
}

// ParseTeamsActivity handles Bot Framework message activities. Other activity
// types (conversationUpdate, typing) are ignored.
func ParseTeamsActivity(body []byte) (Inbound, error) {
	var act teamsActivity
	if err := json.Unmarshal(body, &act); err != nil {
		return Inbound{}, fmt.Errorf("decode teams activity: %w", err)
	}

	in := Inbound{EventType: act.Type, EventID: act.ID}
	if act.Type != "message" {
		in.Reason = "unsupported activity type " + act.Type
		return in, nil
	}
	if act.From.Role == "bot" {
		in.Reason = "bot message"
		return in, nil
	}

	text, err := TeamsText(act.Text)
	if err != nil {
		return Inbound{}, err
	}
	if act.From.ID == "" || text == "" {
		in.Reason = "empty message"
		return in, nil
	}

	meta := map[string]string{}
	if name := firstNonEmpty(act.ChannelData.Channel.Name, act.Conversation.Name); name != "" {
		meta[orchestrator.MetaChannelName] = name
	}
	if act.ReplyToID != "" {
		meta[orchestrator.MetaParentContextID] = act.ReplyToID
	}

	in.Kind = KindQuery
	in.Query = orchestrator.PlatformQueryContext{
		Platform:  orchestrator.PlatformTeams,
		UserID:    act.From.ID,
		ChannelID: act.Conversation.ID,
		ThreadID:  act.ReplyToID,
		Query:     text,
		Metadata:  meta,
	}
	return in, nil
}

// TeamsText drops <at> mentions from an HTML message body and returns its
// plain text. Plain-text bodies pass through unchanged apart from whitespace.
func TeamsText(body string) (string, error) {
	if !strings.Contains(body, "<") {
		return strings.Join(strings.Fields(body), " "), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse teams html: %w", err)
	}
	doc.Find("at").Remove()
	doc.Find("br, p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml(" ")
	})

	return strings.Join(strings.Fields(doc.Text()), " "), nil
}
