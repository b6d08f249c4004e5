package model

// Trigger condition inputs read from visitor telemetry.
const (
	ConditionTimeOnPage      = "time_on_page"
	ConditionPageURL         = "page_url"
	ConditionVisitorLocation = "visitor_location"
	ConditionVisitCount      = "visit_count"
	ConditionCustomVariable  = "custom_variable"
)

// Condition operators.
const (
	OperatorEquals      = "equals"
	OperatorContains    = "contains"
	OperatorGreaterThan = "greater_than"
	OperatorLessThan    = "less_than"
	OperatorStartsWith  = "starts_with"
	OperatorEndsWith    = "ends_with"
)

// Trigger action kinds.
const (
	ActionSendMessage      = "send_message"
	ActionOpenChat         = "open_chat"
	ActionShowNotification = "show_notification"
	ActionAssignToAgent    = "assign_to_agent"
	ActionAddTag           = "add_tag"
)

// TriggerMatch selects how a trigger's conditions combine.
type TriggerMatch string

const (
	MatchAll TriggerMatch = "all"
	MatchAny TriggerMatch = "any"
)

type TriggerCondition struct {
	Type     string `dynamodbav:"type" json:"type"`
	Operator string `dynamodbav:"operator" json:"operator"`
	Value    string `dynamodbav:"value" json:"value"`
}

type TriggerAction struct {
	Type  string `dynamodbav:"type" json:"type"`
	Value string `dynamodbav:"value,omitempty" json:"value,omitempty"`
}

type TriggerItem struct {
	TriggerID      string             `dynamodbav:"triggerId" json:"triggerId"`
	Name           string             `dynamodbav:"name" json:"name"`
	Description    string             `dynamodbav:"description,omitempty" json:"description,omitempty"`
	IsActive       bool               `dynamodbav:"isActive" json:"isActive"`
	Priority       int                `dynamodbav:"priority" json:"priority"`
	Match          TriggerMatch       `dynamodbav:"match" json:"match"`
	Conditions     []TriggerCondition `dynamodbav:"conditions" json:"conditions"`
	Actions        []TriggerAction    `dynamodbav:"actions" json:"actions"`
	DepartmentID   string             `dynamodbav:"departmentId,omitempty" json:"departmentId,omitempty"`
	ExecutionCount int                `dynamodbav:"executionCount" json:"executionCount"`
	LastExecutedAt string             `dynamodbav:"lastExecutedAt,omitempty" json:"lastExecutedAt,omitempty"`
	CreatedAt      string             `dynamodbav:"createdAt" json:"createdAt"`
}
