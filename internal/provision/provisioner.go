// Package provision configures the monitoring server to forward alerts and seeds demo data.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"zac/internal/clock"
	"zac/internal/config"
	"zac/internal/domain"
	"zac/internal/sender"
	"zac/internal/zabbix"
)

// ErrAuthentication marks a failed login.
var ErrAuthentication = errors.New("authentication failed")

// API is the administrative API surface used by the provisioner.
type API interface {
	Login(ctx context.Context, user, password string) error
	APIVersion(ctx context.Context) (string, error)
	MediaTypes(ctx context.Context) ([]zabbix.MediaType, error)
	CreateMediaType(ctx context.Context, mediaType zabbix.MediaTypeCreate) (string, error)
	Users(ctx context.Context) ([]zabbix.User, error)
	UpdateUserMedia(ctx context.Context, userID string, medias ...zabbix.Media) error
	Actions(ctx context.Context, name string) ([]zabbix.Action, error)
	CreateAction(ctx context.Context, action zabbix.ActionCreate) (string, error)
	Hosts(ctx context.Context) ([]zabbix.Host, error)
	UpdateHostStatus(ctx context.Context, hostID string, status zabbix.Status) error
	CreateHost(ctx context.Context, host zabbix.HostCreate) (string, error)
	HostGroups(ctx context.Context) ([]zabbix.HostGroup, error)
	Templates(ctx context.Context) ([]zabbix.Template, error)
	CreateItem(ctx context.Context, item zabbix.ItemCreate) (string, error)
	Items(ctx context.Context, itemIDs ...string) ([]zabbix.Item, error)
	DeleteItems(ctx context.Context, itemIDs ...string) error
	CreateTrigger(ctx context.Context, trigger zabbix.TriggerCreate) (string, error)
	Triggers(ctx context.Context, triggerIDs ...string) ([]zabbix.Trigger, error)
	DeleteTriggers(ctx context.Context, triggerIDs ...string) error
}

// Pusher submits trapper values.
type Pusher interface {
	Send(ctx context.Context, metrics ...sender.Metric) (sender.Response, error)
}

// MediaChannelSpec describes the script media type to ensure.
type MediaChannelSpec struct {
	Name            string
	ExecPath        string
	ExecParams      string
	MaxAttempts     int
	AttemptInterval string
}

// MediaChannel is the resolved media type.
type MediaChannel struct {
	ID      string
	Created bool
}

// UserMediaSpec describes the media binding of one user.
type UserMediaSpec struct {
	Alias       string
	MediaTypeID string
	URL         string
	APIKey      string
	Severity    zabbix.SeverityMask
	Period      string
}

// Destination returns "url" or "url;apiKey".
func (s UserMediaSpec) Destination() string {
	if strings.TrimSpace(s.APIKey) == "" {
		return s.URL
	}
	return s.URL + ";" + s.APIKey
}

// ActionRuleSpec describes the forwarding action rule.
type ActionRuleSpec struct {
	Name               string
	MediaTypeID        string
	UserID             string
	EscPeriodSec       int
	Message            MessageOptions
	PauseInMaintenance bool
	SkipExisting       bool
}

// ActionOutcome reports the created or reused action rule.
type ActionOutcome struct {
	ActionID string
	Skipped  bool
}

// Provisioner runs provisioning steps over one authenticated API session.
// Params: config snapshot, API client, trapper pusher, logger, and clock.
// Returns: sequential provisioner; not safe for concurrent use.
type Provisioner struct {
	cfg    config.Config
	api    API
	pusher Pusher
	logger *slog.Logger
	clock  clock.Clock
}

// New creates a provisioner.
// Params: config snapshot, API client, optional pusher (required by the probe), logger, and clock.
// Returns: provisioner ready for Connect.
func New(cfg config.Config, api API, pusher Pusher, logger *slog.Logger, clk clock.Clock) *Provisioner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Provisioner{cfg: cfg, api: api, pusher: pusher, logger: logger, clock: clk}
}

// Connect logs in with configured credentials and reads the API version.
// Params: context.
// Returns: API version or ErrAuthentication-wrapped login error.
func (p *Provisioner) Connect(ctx context.Context) (string, error) {
	if err := p.api.Login(ctx, p.cfg.Zabbix.User, p.cfg.Zabbix.Password); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	version, err := p.api.APIVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("read api version: %w", err)
	}
	p.logger.Info("connected to zabbix api", "version", version, "user", p.cfg.Zabbix.User)
	return version, nil
}

// EnsureAlertChannel returns the first media type named spec.Name, creating it when absent.
// An existing record is reused unmodified even if its settings differ.
// Params: context and media channel spec.
// Returns: media type id and whether it was created.
func (p *Provisioner) EnsureAlertChannel(ctx context.Context, spec MediaChannelSpec) (MediaChannel, error) {
	mediaTypes, err := p.api.MediaTypes(ctx)
	if err != nil {
		return MediaChannel{}, err
	}
	if existing, ok := zabbix.FindBy(mediaTypes, func(m zabbix.MediaType) bool { return m.Description == spec.Name }); ok {
		p.logger.Info("media type exists", "name", spec.Name, "mediatypeid", existing.ID)
		return MediaChannel{ID: existing.ID}, nil
	}

	p.logger.Info("media type does not exist, creating", "name", spec.Name)
	execParams := spec.ExecParams
	if execParams == "" {
		execParams = ExecParams
	}
	id, err := p.api.CreateMediaType(ctx, zabbix.MediaTypeCreate{
		Type:            zabbix.MediaTypeScript,
		Description:     spec.Name,
		ExecPath:        spec.ExecPath,
		ExecParams:      execParams,
		MaxAttempts:     strconv.Itoa(spec.MaxAttempts),
		AttemptInterval: spec.AttemptInterval,
	})
	if err != nil {
		return MediaChannel{}, err
	}
	return MediaChannel{ID: id, Created: true}, nil
}

// BindUserMedia replaces the whole media list of the user with one binding.
// Media previously bound to the user through other media types are dropped.
// Params: context and binding spec.
// Returns: resolved user id; wrapped zabbix.ErrNotFound when the alias is unknown.
func (p *Provisioner) BindUserMedia(ctx context.Context, spec UserMediaSpec) (string, error) {
	users, err := p.api.Users(ctx)
	if err != nil {
		return "", err
	}
	user, err := zabbix.Lookup(users, fmt.Sprintf("user %q", spec.Alias), func(u zabbix.User) bool { return u.Alias == spec.Alias })
	if err != nil {
		return "", err
	}
	media := zabbix.Media{
		MediaTypeID: spec.MediaTypeID,
		SendTo:      spec.Destination(),
		Active:      zabbix.StatusEnabled,
		Severity:    spec.Severity,
		Period:      spec.Period,
	}
	if err := p.api.UpdateUserMedia(ctx, user.ID, media); err != nil {
		return "", err
	}
	p.logger.Info("user media replaced", "alias", spec.Alias, "userid", user.ID, "mediatypeid", spec.MediaTypeID)
	return user.ID, nil
}

// UpsertActionRule creates the forwarding action rule.
// Every call creates a new rule unless SkipExisting finds one with the same name.
// Params: context and rule spec.
// Returns: created or existing action id.
func (p *Provisioner) UpsertActionRule(ctx context.Context, spec ActionRuleSpec) (ActionOutcome, error) {
	if spec.SkipExisting {
		existing, err := p.api.Actions(ctx, spec.Name)
		if err != nil {
			return ActionOutcome{}, err
		}
		if len(existing) > 0 {
			p.logger.Info("action rule exists, skipping create", "name", spec.Name, "actionid", existing[0].ID, "count", len(existing))
			return ActionOutcome{ActionID: existing[0].ID, Skipped: true}, nil
		}
	}
	id, err := p.api.CreateAction(ctx, BuildActionRule(spec))
	if err != nil {
		return ActionOutcome{}, err
	}
	p.logger.Info("action rule created", "name", spec.Name, "actionid", id)
	return ActionOutcome{ActionID: id}, nil
}

// BuildActionRule renders the action.create payload.
// Params: rule spec.
// Returns: payload with one fire and one recovery send-message operation.
func BuildActionRule(spec ActionRuleSpec) zabbix.ActionCreate {
	body := BuildMessage(spec.Message)
	maintenance := zabbix.MaintenanceNoPause
	if spec.PauseInMaintenance {
		maintenance = zabbix.MaintenancePause
	}
	return zabbix.ActionCreate{
		Name:               spec.Name,
		EventSource:        zabbix.EventSourceTrigger,
		Status:             zabbix.StatusEnabled,
		EscPeriod:          spec.EscPeriodSec,
		DefShortData:       ShortTemplate,
		DefLongData:        body,
		RecoveryShortData:  ShortTemplate,
		RecoveryLongData:   body,
		MaintenanceMode:    maintenance,
		Operations:         []zabbix.Operation{sendMessage(spec, FireMessage(spec.Message))},
		RecoveryOperations: []zabbix.Operation{sendMessage(spec, RecoveryMessage(spec.Message))},
	}
}

func sendMessage(spec ActionRuleSpec, message string) zabbix.Operation {
	return zabbix.Operation{
		OperationType: zabbix.OperationSendMessage,
		OpMessage: zabbix.OpMessage{
			DefaultMsg:  zabbix.DefaultMessageCustom,
			MediaTypeID: spec.MediaTypeID,
			Subject:     OperationSubject,
			Message:     message,
		},
		OpMessageUser: []zabbix.OpMessageUser{{UserID: spec.UserID}},
	}
}

// CreateAction ensures the media type, binds it to the user and creates the action rule.
// Params: context.
// Returns: summary of ids; the first failing step aborts the sequence.
func (p *Provisioner) CreateAction(ctx context.Context) (domain.ActionSummary, error) {
	var summary domain.ActionSummary

	channel, err := p.EnsureAlertChannel(ctx, MediaChannelFromConfig(p.cfg.Media))
	if err != nil {
		return summary, fmt.Errorf("ensure alert channel: %w", err)
	}
	summary.MediaTypeID = channel.ID
	summary.MediaTypeCreated = channel.Created

	userID, err := p.BindUserMedia(ctx, UserMediaFromConfig(p.cfg, channel.ID))
	if err != nil {
		return summary, fmt.Errorf("bind user media: %w", err)
	}
	summary.UserID = userID

	outcome, err := p.UpsertActionRule(ctx, ActionRuleFromConfig(p.cfg, channel.ID, userID))
	if err != nil {
		return summary, fmt.Errorf("upsert action rule: %w", err)
	}
	summary.ActionID = outcome.ActionID
	summary.ActionSkipped = outcome.Skipped
	return summary, nil
}

// MediaChannelFromConfig maps the media section to a channel spec.
func MediaChannelFromConfig(cfg config.MediaConfig) MediaChannelSpec {
	return MediaChannelSpec{
		Name:            cfg.Name,
		ExecPath:        cfg.ExecPath,
		ExecParams:      ExecParams,
		MaxAttempts:     cfg.MaxAttempts,
		AttemptInterval: cfg.AttemptInterval,
	}
}

// UserMediaFromConfig maps user and alerta sections to a binding spec.
func UserMediaFromConfig(cfg config.Config, mediaTypeID string) UserMediaSpec {
	return UserMediaSpec{
		Alias:       cfg.User.Alias,
		MediaTypeID: mediaTypeID,
		URL:         cfg.Alerta.URL,
		APIKey:      cfg.Alerta.APIKey,
		Severity:    zabbix.SeverityMask(cfg.User.Severity),
		Period:      cfg.User.Period,
	}
}

// ActionRuleFromConfig maps action and alerta sections to a rule spec.
func ActionRuleFromConfig(cfg config.Config, mediaTypeID, userID string) ActionRuleSpec {
	message := MessageOptions{
		Environment:       cfg.Alerta.Profile,
		UseZabbixSeverity: cfg.Action.UseZabbixSeverity,
	}
	if cfg.Action.UseConsoleLink {
		message.ConsoleURL = cfg.Action.ConsoleURL
	}
	return ActionRuleSpec{
		Name:               cfg.Action.Name,
		MediaTypeID:        mediaTypeID,
		UserID:             userID,
		EscPeriodSec:       cfg.Action.EscPeriodSec,
		Message:            message,
		PauseInMaintenance: cfg.Action.PauseInMaintenance,
		SkipExisting:       cfg.Action.SkipExisting,
	}
}
