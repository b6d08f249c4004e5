package model

type VisitorItem struct {
	VisitorID      string            `dynamodbav:"visitorId" json:"visitorId"`
	Name           string            `dynamodbav:"name,omitempty" json:"name,omitempty"`
	Email          string            `dynamodbav:"email,omitempty" json:"email,omitempty"`
	CurrentPageURL string            `dynamodbav:"currentPageUrl,omitempty" json:"currentPageUrl,omitempty"`
	VisitCount     int               `dynamodbav:"visitCount" json:"visitCount"`
	Location       string            `dynamodbav:"location,omitempty" json:"location,omitempty"`
	Tags           []string          `dynamodbav:"tags,omitempty" json:"tags,omitempty"`
	Metadata       map[string]string `dynamodbav:"metadata,omitempty" json:"metadata,omitempty"`
	IsOnline       bool              `dynamodbav:"isOnline" json:"isOnline"`
	CreatedAt      string            `dynamodbav:"createdAt" json:"createdAt"`
	LastSeenAt     string            `dynamodbav:"lastSeenAt" json:"lastSeenAt"`
}

type DepartmentItem struct {
	DepartmentID     string `dynamodbav:"departmentId" json:"departmentId"`
	Name             string `dynamodbav:"name" json:"name"`
	AssignmentMethod string `dynamodbav:"assignmentMethod,omitempty" json:"assignmentMethod,omitempty"`
	CreatedAt        string `dynamodbav:"createdAt" json:"createdAt"`
}
