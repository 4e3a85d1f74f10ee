package provision

import "strings"

const (
	lineSeparator = "\r\n"
	// ExecParams passes destination, subject and body to the media script, one per line.
	ExecParams = "{ALERT.SENDTO}\n{ALERT.SUBJECT}\n{ALERT.MESSAGE}\n"
	// ShortTemplate is the rule-level subject for fire and recovery.
	ShortTemplate = "{TRIGGER.NAME}: {TRIGGER.STATUS}"
	// OperationSubject is the subject of both operations.
	OperationSubject = "{TRIGGER.STATUS}: {TRIGGER.NAME}"

	fireEventMacro     = "{EVENT.ID}"
	recoveryEventMacro = "{EVENT.RECOVERY.ID}"
)

// MessageOptions selects the variable parts of the alert message body.
type MessageOptions struct {
	// Environment is written verbatim into the environment line.
	Environment string
	// UseZabbixSeverity appends "!!" so the receiving script keeps native severity names.
	UseZabbixSeverity bool
	// ConsoleURL enables the console deep link when non-empty.
	ConsoleURL string
}

// BuildMessage assembles the key=value body shared by the rule defaults and both operations.
// Params: message options.
// Returns: body lines joined with CRLF, without a console link.
func BuildMessage(opts MessageOptions) string {
	severity := "severity={TRIGGER.SEVERITY}"
	if opts.UseZabbixSeverity {
		severity += "!!"
	}
	lines := []string{
		"resource={HOST.NAME1}",
		"event={ITEM.KEY1}",
		"environment=" + opts.Environment,
		severity,
		"status={TRIGGER.STATUS}",
		"ack={EVENT.ACK.STATUS}",
		"service={TRIGGER.HOSTGROUP.NAME}",
		"group=Zabbix",
		"value={ITEM.VALUE1}",
		"text={TRIGGER.STATUS}: {TRIGGER.NAME}",
		"tags={EVENT.TAGS}",
		"attributes.ip={HOST.IP1}",
		"attributes.thresholdInfo={TRIGGER.TEMPLATE.NAME}: {TRIGGER.EXPRESSION}",
		"type=zabbixAlert",
		"dateTime={EVENT.DATE}T{EVENT.TIME}Z",
	}
	return strings.Join(lines, lineSeparator)
}

// FireMessage is the body of the fire operation.
func FireMessage(opts MessageOptions) string {
	return BuildMessage(opts) + consoleLink(opts.ConsoleURL, fireEventMacro)
}

// RecoveryMessage is the body of the recovery operation.
func RecoveryMessage(opts MessageOptions) string {
	return BuildMessage(opts) + consoleLink(opts.ConsoleURL, recoveryEventMacro)
}

// consoleLink renders the moreInfo attribute pointing at the trigger events page.
// Params: console base URL (empty disables the link) and event id macro.
// Returns: CRLF-prefixed attribute line or empty string.
func consoleLink(consoleURL, eventMacro string) string {
	base := strings.TrimRight(strings.TrimSpace(consoleURL), "/")
	if base == "" {
		return ""
	}
	return lineSeparator + `attributes.moreInfo=<a href="` + base +
		`/tr_events.php?triggerid={TRIGGER.ID}&eventid=` + eventMacro + `">Zabbix console</a>`
}
