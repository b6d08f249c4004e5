package model

type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
	AgentStatusAway    AgentStatus = "away"
	AgentStatusBusy    AgentStatus = "busy"
)

// Assignable reports whether the status allows new conversations. busy agents
// keep their current load but receive nothing new.
func (s AgentStatus) Assignable() bool {
	return s == AgentStatusOnline || s == AgentStatusAway
}

type AgentItem struct {
	AgentID            string      `dynamodbav:"agentId" json:"agentId"`
	Email              string      `dynamodbav:"email" json:"email"`
	Name               string      `dynamodbav:"name" json:"name"`
	Role               string      `dynamodbav:"role" json:"role"`
	Status             AgentStatus `dynamodbav:"status" json:"status"`
	CurrentChatCount   int         `dynamodbav:"currentChatCount" json:"currentChatCount"`
	MaxConcurrentChats int         `dynamodbav:"maxConcurrentChats" json:"maxConcurrentChats"`
	Skills             []string    `dynamodbav:"skills,omitempty" json:"skills,omitempty"`
	DepartmentIDs      []string    `dynamodbav:"departmentIds,omitempty" json:"departmentIds,omitempty"`
	LastAssignedAt     string      `dynamodbav:"lastAssignedAt,omitempty" json:"lastAssignedAt,omitempty"`
	LastActiveAt       string      `dynamodbav:"lastActiveAt,omitempty" json:"lastActiveAt,omitempty"`
	PasswordHash       string      `dynamodbav:"passwordHash" json:"-"`
	CreatedAt          string      `dynamodbav:"createdAt" json:"createdAt"`
}

// HasSkill reports whether the agent covers any of the requested skills.
func (a AgentItem) HasSkill(requested []string) bool {
	for _, want := range requested {
		for _, have := range a.Skills {
			if want == have {
				return true
			}
		}
	}
	return false
}

// InDepartment reports membership; an empty department matches everyone.
func (a AgentItem) InDepartment(departmentID string) bool {
	if departmentID == "" {
		return true
	}
	for _, id := range a.DepartmentIDs {
		if id == departmentID {
			return true
		}
	}
	return false
}
