package domain

import "time"

// Repeat задаёт периодичность запланированного сообщения.
type Repeat string

const (
	RepeatOnce    Repeat = "once"
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// Valid сообщает, известна ли периодичность.
func (r Repeat) Valid() bool {
	switch r {
	case RepeatOnce, RepeatDaily, RepeatWeekly, RepeatMonthly:
		return true
	}
	return false
}

// ScheduleStatus описывает состояние запланированного сообщения.
type ScheduleStatus string

const (
	ScheduleStatusPending   ScheduleStatus = "pending"
	ScheduleStatusCompleted ScheduleStatus = "completed"
)

// ScheduledMessage описывает разовую или периодическую отправку.
type ScheduledMessage struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	SessionID      string         `json:"sessionId"`
	ChatID         string         `json:"chatId"`
	Message        string         `json:"message"`
	ScheduledAt    time.Time      `json:"scheduledAt"`
	Repeat         Repeat         `json:"repeat"`
	TypingTime     int            `json:"typingTime"`
	Timezone       string         `json:"timezone"`
	Enabled        bool           `json:"enabled"`
	Status         ScheduleStatus `json:"status"`
	ExecutionCount int            `json:"executionCount"`
	LastExecuted   *time.Time     `json:"lastExecuted,omitempty"`
	LastError      string         `json:"lastError,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      *time.Time     `json:"updatedAt,omitempty"`
}

// TypingDelay возвращает имитацию набора текста перед отправкой.
func (m ScheduledMessage) TypingDelay() time.Duration {
	return time.Duration(m.TypingTime) * time.Millisecond
}

// Виды триггеров автоответа.
const (
	TriggerAll          = "all"
	TriggerKeyword      = "keyword"
	TriggerRegex        = "regex"
	TriggerFirstMessage = "first_message"
)

// Режимы сравнения ключевых слов.
const (
	MatchContains   = "contains"
	MatchExact      = "exact"
	MatchStartsWith = "startsWith"
	MatchEndsWith   = "endsWith"
)

// Типы чатов в условиях правила.
const (
	ChatTypeAll      = "all"
	ChatTypePersonal = "personal"
	ChatTypeGroup    = "group"
)

// ActionReply означает ответ текстом в тот же чат.
const ActionReply = "reply"

// AllSessions означает, что правило действует для любой сессии.
const AllSessions = "*"

// RuleTrigger описывает, на какой текст реагирует правило.
type RuleTrigger struct {
	Type      string   `json:"type"`
	Keywords  []string `json:"keywords"`
	MatchType string   `json:"matchType"`
	Pattern   string   `json:"pattern"`
	Flags     string   `json:"flags"`
}

// TimeRange ограничивает работу правила интервалом локального времени HH:MM.
type TimeRange struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// RuleConditions задаёт дополнительные фильтры правила.
type RuleConditions struct {
	ChatType        string    `json:"chatType"`
	TimeRange       TimeRange `json:"timeRange"`
	ExcludeContacts []string  `json:"excludeContacts"`
}

// RuleAction описывает ответ. Delay задаётся в секундах.
type RuleAction struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Delay   int    `json:"delay"`
}

// AutoReplyRule описывает правило автоответа.
type AutoReplyRule struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	SessionID     string         `json:"sessionId"`
	Trigger       RuleTrigger    `json:"trigger"`
	Conditions    RuleConditions `json:"conditions"`
	Action        RuleAction     `json:"action"`
	Priority      int            `json:"priority"`
	Enabled       bool           `json:"enabled"`
	MatchCount    int            `json:"matchCount"`
	LastMatchedAt *time.Time     `json:"lastMatchedAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
}

// AppliesTo сообщает, относится ли правило к сессии.
func (r AutoReplyRule) AppliesTo(sessionID string) bool {
	return r.SessionID == AllSessions || r.SessionID == sessionID
}

// ReplyAction описывает результат сработавшего правила.
type ReplyAction struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Type     string `json:"type"`
	ChatID   string `json:"chatId"`
	Message  string `json:"message"`
	// Delay в секундах, как в RuleAction.
	Delay int `json:"delay"`
}

// BroadcastStatus описывает состояние рассылки.
type BroadcastStatus string

const (
	BroadcastCreated   BroadcastStatus = "created"
	BroadcastRunning   BroadcastStatus = "running"
	BroadcastPaused    BroadcastStatus = "paused"
	BroadcastCompleted BroadcastStatus = "completed"
	BroadcastCancelled BroadcastStatus = "cancelled"
)

// Terminal сообщает, что из состояния больше нет переходов.
func (s BroadcastStatus) Terminal() bool {
	return s == BroadcastCompleted || s == BroadcastCancelled
}

// RecipientStatus описывает состояние доставки одному получателю.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Типы вложений рассылки.
const (
	MediaImage    = "image"
	MediaDocument = "document"
)

// Recipient описывает получателя рассылки.
type Recipient struct {
	ChatID string          `json:"chatId"`
	Status RecipientStatus `json:"status"`
	SentAt *time.Time      `json:"sentAt,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BroadcastStats хранит агрегаты по получателям. Sent+Failed+Pending == Total.
type BroadcastStats struct {
	Total   int `json:"total"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Pending int `json:"pending"`
}

// Broadcast описывает кампанию массовой рассылки.
type Broadcast struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	SessionID    string          `json:"sessionId"`
	Message      string          `json:"message"`
	MediaURL     string          `json:"mediaUrl,omitempty"`
	MediaType    string          `json:"mediaType,omitempty"`
	Caption      string          `json:"caption,omitempty"`
	Recipients   []Recipient     `json:"recipients"`
	Status       BroadcastStatus `json:"status"`
	Stats        BroadcastStats  `json:"stats"`
	CurrentIndex int             `json:"currentIndex"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// Clone возвращает копию, не разделяющую список получателей.
func (b Broadcast) Clone() Broadcast {
	b.Recipients = append([]Recipient(nil), b.Recipients...)
	return b
}
