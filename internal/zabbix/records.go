package zabbix

// Records returned by get methods. The API encodes ids and numeric fields as strings.

// MediaType is one outbound alert transport.
type MediaType struct {
	ID              string `json:"mediatypeid"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	ExecPath        string `json:"exec_path,omitempty"`
	ExecParams      string `json:"exec_params,omitempty"`
	MaxAttempts     string `json:"maxattempts,omitempty"`
	AttemptInterval string `json:"attempt_interval,omitempty"`
	Status          string `json:"status,omitempty"`
}

// User is one frontend user.
type User struct {
	ID      string `json:"userid"`
	Alias   string `json:"alias"`
	Name    string `json:"name,omitempty"`
	Surname string `json:"surname,omitempty"`
}

// Action is one event action rule.
type Action struct {
	ID          string `json:"actionid"`
	Name        string `json:"name"`
	EventSource string `json:"eventsource,omitempty"`
	Status      string `json:"status,omitempty"`
	EscPeriod   string `json:"esc_period,omitempty"`
}

// Host is one monitored host.
type Host struct {
	ID     string `json:"hostid"`
	Host   string `json:"host"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// HostGroup is one host group.
type HostGroup struct {
	ID   string `json:"groupid"`
	Name string `json:"name"`
}

// Template is one host template.
type Template struct {
	ID   string `json:"templateid"`
	Host string `json:"host,omitempty"`
	Name string `json:"name"`
}

// Item is one metric definition.
type Item struct {
	ID        string `json:"itemid"`
	HostID    string `json:"hostid,omitempty"`
	Key       string `json:"key_"`
	LastValue string `json:"lastvalue"`
	LastClock string `json:"lastclock,omitempty"`
}

// Trigger is one problem expression.
type Trigger struct {
	ID          string       `json:"triggerid"`
	Description string       `json:"description"`
	Expression  string       `json:"expression,omitempty"`
	Value       TriggerValue `json:"value"`
	LastChange  string       `json:"lastchange,omitempty"`
	Priority    string       `json:"priority,omitempty"`
}

// Create and update payloads.

// MediaTypeCreate is the mediatype.create payload.
type MediaTypeCreate struct {
	Type            MediaTypeKind `json:"type"`
	Description     string        `json:"description"`
	ExecPath        string        `json:"exec_path"`
	ExecParams      string        `json:"exec_params"`
	MaxAttempts     string        `json:"maxattempts"`
	AttemptInterval string        `json:"attempt_interval"`
}

// Media is one user media binding as sent to user.updatemedia.
type Media struct {
	MediaTypeID string       `json:"mediatypeid"`
	SendTo      string       `json:"sendto"`
	Active      Status       `json:"active"`
	Severity    SeverityMask `json:"severity"`
	Period      string       `json:"period"`
}

// ActionCreate is the action.create payload.
type ActionCreate struct {
	Name               string          `json:"name"`
	EventSource        EventSource     `json:"eventsource"`
	Status             Status          `json:"status"`
	EscPeriod          int             `json:"esc_period"`
	DefShortData       string          `json:"def_shortdata"`
	DefLongData        string          `json:"def_longdata"`
	RecoveryShortData  string          `json:"r_shortdata"`
	RecoveryLongData   string          `json:"r_longdata"`
	MaintenanceMode    MaintenanceMode `json:"maintenance_mode"`
	Operations         []Operation     `json:"operations"`
	RecoveryOperations []Operation     `json:"recovery_operations"`
}

// Operation is one action operation (fire or recovery).
type Operation struct {
	OperationType OperationType   `json:"operationtype"`
	OpMessage     OpMessage       `json:"opmessage"`
	OpMessageUser []OpMessageUser `json:"opmessage_usr"`
}

// OpMessage is the message part of a send-message operation.
type OpMessage struct {
	DefaultMsg  DefaultMessage `json:"default_msg"`
	MediaTypeID string         `json:"mediatypeid"`
	Subject     string         `json:"subject"`
	Message     string         `json:"message"`
}

// OpMessageUser addresses one user of a send-message operation.
type OpMessageUser struct {
	UserID string `json:"userid"`
}

// HostCreate is the host.create payload.
type HostCreate struct {
	Host       string          `json:"host"`
	Interfaces []HostInterface `json:"interfaces"`
	Groups     []GroupRef      `json:"groups"`
	Templates  []TemplateRef   `json:"templates,omitempty"`
}

// HostInterface is one host interface definition.
type HostInterface struct {
	Type  InterfaceType  `json:"type"`
	Main  int            `json:"main"`
	UseIP InterfaceUseIP `json:"useip"`
	IP    string         `json:"ip"`
	DNS   string         `json:"dns"`
	Port  string         `json:"port"`
}

// GroupRef references a host group by id.
type GroupRef struct {
	GroupID string `json:"groupid"`
}

// TemplateRef references a template by id.
type TemplateRef struct {
	TemplateID string `json:"templateid"`
}

// ItemCreate is the item.create payload.
type ItemCreate struct {
	Name      string    `json:"name"`
	Type      ItemType  `json:"type"`
	Key       string    `json:"key_"`
	ValueType ValueType `json:"value_type"`
	HostID    string    `json:"hostid"`
	Status    Status    `json:"status"`
}

// TriggerCreate is the trigger.create payload.
type TriggerCreate struct {
	Description string      `json:"description"`
	Expression  string      `json:"expression"`
	Type        TriggerType `json:"type"`
	Priority    Priority    `json:"priority"`
	Status      Status      `json:"status"`
}
