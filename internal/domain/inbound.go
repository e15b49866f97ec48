package domain

import (
	"strings"
	"time"
)

// StatusBroadcastChat обозначает служебный чат статусов, на него не отвечаем.
const StatusBroadcastChat = "status@broadcast"

const groupSuffix = "@g.us"

// InboundMessage описывает входящее сообщение в том виде, в каком его отдаёт транспорт.
type InboundMessage struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"senderName"`
	FromMe     bool      `json:"fromMe"`
	IsGroup    bool      `json:"isGroup"`
	Timestamp  time.Time `json:"timestamp"`

	Body         string `json:"body,omitempty"`
	ExtendedText string `json:"extendedText,omitempty"`
	ImageCaption string `json:"imageCaption,omitempty"`
	VideoCaption string `json:"videoCaption,omitempty"`
	DocCaption   string `json:"documentCaption,omitempty"`
}

// Text возвращает первый непустой текст: тело, расширенный текст или подпись к медиа.
func (m InboundMessage) Text() string {
	for _, candidate := range []string{m.Body, m.ExtendedText, m.ImageCaption, m.VideoCaption, m.DocCaption} {
		if strings.TrimSpace(candidate) != "" {
			return candidate
		}
	}
	return ""
}

// Group сообщает, пришло ли сообщение из группового чата.
func (m InboundMessage) Group() bool {
	return m.IsGroup || strings.HasSuffix(m.ChatID, groupSuffix)
}

// StatusBroadcast сообщает, что это рассылка статусов.
func (m InboundMessage) StatusBroadcast() bool {
	return m.ChatID == StatusBroadcastChat
}

// SenderNumber возвращает номер отправителя без домена и суффикса устройства.
func (m InboundMessage) SenderNumber() string {
	sender := m.Sender
	if sender == "" {
		sender = m.ChatID
	}
	return BareNumber(sender)
}

// BareNumber приводит JID или номер к виду "79991234567".
func BareNumber(jid string) string {
	bare := strings.TrimSpace(jid)
	if idx := strings.IndexByte(bare, '@'); idx >= 0 {
		bare = bare[:idx]
	}
	if idx := strings.IndexByte(bare, ':'); idx >= 0 {
		bare = bare[:idx]
	}
	return strings.TrimPrefix(bare, "+")
}
