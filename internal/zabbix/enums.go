package zabbix

import "strconv"

// Wire constants of the administrative API. Values are part of the remote schema.

// MediaTypeKind is the transport of a media type.
type MediaTypeKind int

const (
	MediaTypeEmail  MediaTypeKind = 0
	MediaTypeScript MediaTypeKind = 1
	MediaTypeSMS    MediaTypeKind = 2
)

// String returns the API documentation name of the media type kind.
func (k MediaTypeKind) String() string {
	switch k {
	case MediaTypeEmail:
		return "email"
	case MediaTypeScript:
		return "script"
	case MediaTypeSMS:
		return "sms"
	default:
		return "mediatype(" + strconv.Itoa(int(k)) + ")"
	}
}

// Status is the enabled/disabled flag shared by hosts, items, triggers, actions and medias.
type Status int

const (
	StatusEnabled  Status = 0
	StatusDisabled Status = 1
)

// SeverityMask selects trigger severities a user media reacts to, one bit per level.
type SeverityMask int

const (
	SeverityNotClassified SeverityMask = 1 << iota
	SeverityInformation
	SeverityWarning
	SeverityAverage
	SeverityHigh
	SeverityDisaster

	// SeverityAll enables every severity level (63).
	SeverityAll = SeverityNotClassified | SeverityInformation | SeverityWarning |
		SeverityAverage | SeverityHigh | SeverityDisaster
)

// EventSource is the origin of events an action reacts to.
type EventSource int

const (
	EventSourceTrigger      EventSource = 0
	EventSourceDiscovery    EventSource = 1
	EventSourceRegistration EventSource = 2
	EventSourceInternal     EventSource = 3
)

// OperationType is the kind of action operation.
type OperationType int

const (
	OperationSendMessage   OperationType = 0
	OperationRemoteCommand OperationType = 1
)

// DefaultMessage selects whether an operation uses the action-level message.
type DefaultMessage int

const (
	// DefaultMessageCustom uses the operation's own subject and message.
	DefaultMessageCustom DefaultMessage = 0
	// DefaultMessageAction uses def_shortdata/def_longdata of the action.
	DefaultMessageAction DefaultMessage = 1
)

// MaintenanceMode controls escalation pausing while hosts are in maintenance.
type MaintenanceMode int

const (
	MaintenanceNoPause MaintenanceMode = 0
	MaintenancePause   MaintenanceMode = 1
)

// InterfaceType is the host interface kind.
type InterfaceType int

const (
	InterfaceAgent InterfaceType = 1
	InterfaceSNMP  InterfaceType = 2
	InterfaceIPMI  InterfaceType = 3
	InterfaceJMX   InterfaceType = 4
)

// InterfaceUseIP selects whether a host interface connects by IP or DNS.
type InterfaceUseIP int

const (
	ConnectByDNS InterfaceUseIP = 0
	ConnectByIP  InterfaceUseIP = 1
)

// ItemType is the collection method of an item.
type ItemType int

const (
	ItemAgent   ItemType = 0
	ItemTrapper ItemType = 2
)

// ValueType is the stored value kind of an item.
type ValueType int

const (
	ValueFloat     ValueType = 0
	ValueCharacter ValueType = 1
	ValueLog       ValueType = 2
	ValueUnsigned  ValueType = 3
	ValueText      ValueType = 4
)

// TriggerType controls event generation on repeated problem evaluations.
type TriggerType int

const (
	// TriggerSingleEvent generates one event per problem.
	TriggerSingleEvent TriggerType = 0
	// TriggerMultipleEvents generates an event on every problem evaluation.
	TriggerMultipleEvents TriggerType = 1
)

// TriggerValue is the evaluated state of a trigger as returned by trigger.get.
type TriggerValue string

const (
	TriggerOK      TriggerValue = "0"
	TriggerProblem TriggerValue = "1"
)

// Priority is a trigger severity level.
type Priority int

const (
	PriorityNotClassified Priority = 0
	PriorityInformation   Priority = 1
	PriorityWarning       Priority = 2
	PriorityAverage       Priority = 3
	PriorityHigh          Priority = 4
	PriorityDisaster      Priority = 5
)

// String returns the human-readable severity label.
func (p Priority) String() string {
	switch p {
	case PriorityNotClassified:
		return "Not classified"
	case PriorityInformation:
		return "Information"
	case PriorityWarning:
		return "Warning"
	case PriorityAverage:
		return "Average"
	case PriorityHigh:
		return "High"
	case PriorityDisaster:
		return "Disaster"
	default:
		return "Unknown"
	}
}

// Mask returns the severity bit matching the priority.
func (p Priority) Mask() SeverityMask {
	if p < PriorityNotClassified || p > PriorityDisaster {
		return 0
	}
	return SeverityMask(1) << uint(p)
}
