package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nosdois/duet/internal/bus"
)

// eventMessagesUpsert is the only Evolution webhook event the engine acts
// on. Everything else is acknowledged and dropped.
const eventMessagesUpsert = "messages.upsert"

// webhookEnvelope is the outer Evolution API webhook payload.
type webhookEnvelope struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     webhookData `json:"data"`
}

type webhookData struct {
	Key struct {
		RemoteJID   string `json:"remoteJid"`
		FromMe      bool   `json:"fromMe"`
		ID          string `json:"id"`
		Participant string `json:"participant"`
	} `json:"key"`
	PushName         string         `json:"pushName"`
	MessageType      string         `json:"messageType"`
	Message          webhookMessage `json:"message"`
	MessageTimestamp int64          `json:"messageTimestamp"`
}

// webhookMessage is the content union. Only the two text-bearing variants
// are decoded; any other shape yields KindOther.
type webhookMessage struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text        string `json:"text"`
		ContextInfo *struct {
			MentionedJID []string `json:"mentionedJid"`
		} `json:"contextInfo"`
	} `json:"extendedTextMessage"`
}

// decodeEnvelope parses a webhook body, limited to maxBody bytes.
func decodeEnvelope(r io.Reader, maxBody int64) (*webhookEnvelope, error) {
	var env webhookEnvelope
	if err := json.NewDecoder(io.LimitReader(r, maxBody)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	return &env, nil
}

// toInbound flattens the content union into the engine's inbound message.
func (d *webhookData) toInbound() bus.InboundMessage {
	msg := bus.InboundMessage{
		ID:         d.Key.ID,
		ChatID:     d.Key.RemoteJID,
		SenderName: d.PushName,
		SenderID:   d.Key.Participant,
		FromMe:     d.Key.FromMe,
		Kind:       bus.KindOther,
		Timestamp:  time.Now(),
	}
	if d.MessageTimestamp > 0 {
		msg.Timestamp = time.Unix(d.MessageTimestamp, 0)
	}
	if msg.SenderName == "" {
		msg.SenderName = "Usuário"
	}
	if msg.SenderID == "" {
		msg.SenderID = d.Key.RemoteJID
	}

	switch {
	case d.MessageType == "conversation" && d.Message.Conversation != "":
		msg.Kind = bus.KindConversation
		msg.Text = d.Message.Conversation
	case d.MessageType == "extendedTextMessage" && d.Message.ExtendedTextMessage != nil:
		msg.Kind = bus.KindExtendedText
		msg.Text = d.Message.ExtendedTextMessage.Text
		if ci := d.Message.ExtendedTextMessage.ContextInfo; ci != nil {
			msg.Mentions = ci.MentionedJID
		}
	}

	return msg
}
