package model

type ConversationStatus string

const (
	ConversationStatusPending  ConversationStatus = "pending"
	ConversationStatusActive   ConversationStatus = "active"
	ConversationStatusResolved ConversationStatus = "resolved"
	ConversationStatusClosed   ConversationStatus = "closed"
	ConversationStatusMissed   ConversationStatus = "missed"
)

// Terminal reports whether a conversation in this status can never move
// forward again. Reopening a terminal conversation means starting a new one
// so historical response metrics stay accurate.
func (s ConversationStatus) Terminal() bool {
	return s == ConversationStatusResolved || s == ConversationStatusClosed || s == ConversationStatusMissed
}

type ConversationPriority string

const (
	PriorityLow    ConversationPriority = "low"
	PriorityMedium ConversationPriority = "medium"
	PriorityHigh   ConversationPriority = "high"
	PriorityUrgent ConversationPriority = "urgent"
)

type UnreadCount struct {
	Visitor int `dynamodbav:"visitor" json:"visitor"`
	Agent   int `dynamodbav:"agent" json:"agent"`
}

type TransferRecord struct {
	FromAgentID   string `dynamodbav:"fromAgentId" json:"fromAgentId"`
	ToAgentID     string `dynamodbav:"toAgentId" json:"toAgentId"`
	Reason        string `dynamodbav:"reason,omitempty" json:"reason,omitempty"`
	TransferredAt string `dynamodbav:"transferredAt" json:"transferredAt"`
}

type Rating struct {
	Score    int    `dynamodbav:"score" json:"score"`
	Feedback string `dynamodbav:"feedback,omitempty" json:"feedback,omitempty"`
	RatedAt  string `dynamodbav:"ratedAt" json:"ratedAt"`
}

type ConversationItem struct {
	ConversationID  string               `dynamodbav:"conversationId" json:"conversationId"`
	VisitorID       string               `dynamodbav:"visitorId" json:"visitorId"`
	VisitorName     string               `dynamodbav:"visitorName,omitempty" json:"visitorName,omitempty"`
	DepartmentID    string               `dynamodbav:"departmentId,omitempty" json:"departmentId,omitempty"`
	AssignedAgentID string               `dynamodbav:"assignedAgentId,omitempty" json:"assignedAgentId,omitempty"`
	Status          ConversationStatus   `dynamodbav:"status" json:"status"`
	Priority        ConversationPriority `dynamodbav:"priority" json:"priority"`
	Unread          UnreadCount          `dynamodbav:"unreadCount" json:"unreadCount"`
	Tags            []string             `dynamodbav:"tags,omitempty" json:"tags,omitempty"`
	TransferHistory []TransferRecord     `dynamodbav:"transferHistory,omitempty" json:"transferHistory,omitempty"`
	Rating          *Rating              `dynamodbav:"rating,omitempty" json:"rating,omitempty"`

	CreatedAt       string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt       string `dynamodbav:"updatedAt" json:"updatedAt"`
	LastMessageAt   string `dynamodbav:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
	FirstResponseAt string `dynamodbav:"firstResponseAt,omitempty" json:"firstResponseAt,omitempty"`
	ResolvedAt      string `dynamodbav:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	ClosedAt        string `dynamodbav:"closedAt,omitempty" json:"closedAt,omitempty"`

	// Whole minutes, floored. Recalculated on transitions.
	ResponseTimeMinutes   int `dynamodbav:"responseTimeMinutes,omitempty" json:"responseTimeMinutes,omitempty"`
	ResolutionTimeMinutes int `dynamodbav:"resolutionTimeMinutes,omitempty" json:"resolutionTimeMinutes,omitempty"`

	// Version guards the assignment commit: the conversation write and the
	// agent counter updates go through as one conditional unit.
	Version  int  `dynamodbav:"version" json:"version"`
	Archived bool `dynamodbav:"archived,omitempty" json:"archived,omitempty"`
}
