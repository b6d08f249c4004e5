package model

type SenderType string

const (
	SenderAgent   SenderType = "agent"
	SenderVisitor SenderType = "visitor"
	SenderSystem  SenderType = "system"
)

// Sender is the tagged variant over agent/visitor/system authorship. The ID
// refers to an AgentItem or VisitorItem depending on Type; system messages
// carry neither.
type Sender struct {
	Type SenderType `dynamodbav:"type" json:"type"`
	ID   string     `dynamodbav:"id,omitempty" json:"id,omitempty"`
	Name string     `dynamodbav:"name,omitempty" json:"name,omitempty"`
}

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

type MessageStatus string

const (
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// statusRank orders the monotonic sent -> delivered -> read progression.
// failed is terminal and sits outside the progression.
func statusRank(s MessageStatus) int {
	switch s {
	case MessageStatusSent:
		return 0
	case MessageStatusDelivered:
		return 1
	case MessageStatusRead:
		return 2
	}
	return -1
}

// CanAdvance reports whether a message status may move from one value to
// another without regressing.
func (s MessageStatus) CanAdvance(to MessageStatus) bool {
	if s == MessageStatusFailed || to == MessageStatusFailed {
		return to == MessageStatusFailed && s != MessageStatusRead
	}
	return statusRank(to) > statusRank(s)
}

type Attachment struct {
	URL      string `dynamodbav:"url" json:"url"`
	Name     string `dynamodbav:"name,omitempty" json:"name,omitempty"`
	MimeType string `dynamodbav:"mimeType,omitempty" json:"mimeType,omitempty"`
	Size     int64  `dynamodbav:"size,omitempty" json:"size,omitempty"`
}

type Reaction struct {
	Emoji     string     `dynamodbav:"emoji" json:"emoji"`
	UserType  SenderType `dynamodbav:"userType" json:"userType"`
	UserID    string     `dynamodbav:"userId" json:"userId"`
	CreatedAt string     `dynamodbav:"createdAt" json:"createdAt"`
}

type MessageItem struct {
	PK             string        `dynamodbav:"pk" json:"-"`
	ConversationID string        `dynamodbav:"conversationId" json:"conversationId"`
	MessageID      string        `dynamodbav:"messageId" json:"messageId"`
	Sender         Sender        `dynamodbav:"sender" json:"sender"`
	Type           MessageType   `dynamodbav:"type" json:"type"`
	Content        string        `dynamodbav:"content" json:"content"`
	Status         MessageStatus `dynamodbav:"status" json:"status"`
	Attachments    []Attachment  `dynamodbav:"attachments,omitempty" json:"attachments,omitempty"`
	Reactions      []Reaction    `dynamodbav:"reactions,omitempty" json:"reactions,omitempty"`
	IsEdited       bool          `dynamodbav:"isEdited,omitempty" json:"isEdited,omitempty"`
	EditedAt       string        `dynamodbav:"editedAt,omitempty" json:"editedAt,omitempty"`
	IsDeleted      bool          `dynamodbav:"isDeleted,omitempty" json:"isDeleted,omitempty"`
	DeletedAt      string        `dynamodbav:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	ReadAt         string        `dynamodbav:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt      string        `dynamodbav:"createdAt" json:"createdAt"`
}
