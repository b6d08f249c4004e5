package model

import "fmt"

const (
	AgentsTable        = "Agents"
	ConversationsTable = "Conversations"
	MessagesTable      = "Messages"
	VisitorsTable      = "Visitors"
	DepartmentsTable   = "Departments"
	WebhooksTable      = "Webhooks"
	TriggersTable      = "Triggers"
)

func MessagePK(conversationID, messageID string) string {
	return fmt.Sprintf("%s#%s", conversationID, messageID)
}
