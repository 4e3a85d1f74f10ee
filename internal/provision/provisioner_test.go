package provision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"zac/internal/config"
	"zac/internal/sender"
	"zac/internal/zabbix"
	"zac/internal/zabbix/zabbixtest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrapper stores pushed values on the fake server and fires change triggers.
type fakeTrapper struct {
	server      *zabbixtest.Server
	mu          sync.Mutex
	last        map[string]string
	pushed      []sender.Metric
	unprocessed int
	fire        bool
	err         error
}

func newFakeTrapper(server *zabbixtest.Server) *fakeTrapper {
	return &fakeTrapper{server: server, last: make(map[string]string), fire: true}
}

func (f *fakeTrapper) Send(_ context.Context, metrics ...sender.Metric) (sender.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return sender.Response{}, f.err
	}
	f.pushed = append(f.pushed, metrics...)
	if f.unprocessed > 0 {
		f.unprocessed--
		return sender.Response{Response: "success", Info: "processed: 0; failed: 1; total: 1", Failed: 1, Total: 1}, nil
	}
	processed := 0
	for _, metric := range metrics {
		if f.server.SetItemValue(metric.Host, metric.Key, metric.Value) == 0 {
			continue
		}
		processed++
		id := metric.Host + "/" + metric.Key
		previous, seen := f.last[id]
		f.last[id] = metric.Value
		if !f.fire || !seen || previous == metric.Value {
			continue
		}
		prefix := fmt.Sprintf("{%s:%s.", metric.Host, metric.Key)
		for _, trigger := range f.server.Triggers() {
			if strings.HasPrefix(trigger.Expression, prefix) {
				f.server.SetTriggerValue(trigger.ID, zabbix.TriggerProblem)
			}
		}
	}
	return sender.Response{Response: "success", Processed: processed, Total: len(metrics)}, nil
}

func (f *fakeTrapper) values() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.pushed))
	for _, metric := range f.pushed {
		out = append(out, metric.Value)
	}
	return out
}

// stepClock advances on every Sleep.
type stepClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

type fixture struct {
	server  *zabbixtest.Server
	trapper *fakeTrapper
	clock   *stepClock
	prov    *Provisioner
	cfg     config.Config
}

// newFixture returns a connected provisioner backed by a fake server.
func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	server := zabbixtest.NewServer()
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Zabbix.URL = server.URL
	cfg.Seed.Host = config.DefaultHosts()
	cfg.Probe.PollIntervalMS = 1
	cfg.Probe.TimeoutSec = 2
	if mutate != nil {
		mutate(&cfg)
	}

	trapper := newFakeTrapper(server)
	clk := &stepClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	prov := New(cfg, zabbix.NewClient(cfg.Zabbix, nil), trapper, nil, clk)
	_, err := prov.Connect(context.Background())
	require.NoError(t, err)
	return &fixture{server: server, trapper: trapper, clock: clk, prov: prov, cfg: cfg}
}

func TestConnectReportsVersion(t *testing.T) {
	t.Parallel()

	server := zabbixtest.NewServer()
	defer server.Close()
	cfg := config.Default()
	cfg.Zabbix.URL = server.URL

	prov := New(cfg, zabbix.NewClient(cfg.Zabbix, nil), nil, nil, nil)
	version, err := prov.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.4.15", version)

	calls := server.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "user.login", calls[0].Method)
	assert.Equal(t, "apiinfo.version", calls[1].Method)
}

func TestConnectAuthenticationFailure(t *testing.T) {
	t.Parallel()

	server := zabbixtest.NewServer()
	defer server.Close()
	server.SetCredentials("Admin", "secret")
	cfg := config.Default()
	cfg.Zabbix.URL = server.URL

	prov := New(cfg, zabbix.NewClient(cfg.Zabbix, nil), nil, nil, nil)
	_, err := prov.Connect(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)
	var apiErr *zabbix.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "user.login", apiErr.Method)
	assert.Empty(t, server.CallsFor("apiinfo.version"))
}

func TestEnsureAlertChannelCreatesOnceThenReuses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	spec := MediaChannelFromConfig(f.cfg.Media)

	first, err := f.prov.EnsureAlertChannel(context.Background(), spec)
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := f.prov.EnsureAlertChannel(context.Background(), spec)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.ID, second.ID)

	creates := f.server.CallsFor("mediatype.create")
	require.Len(t, creates, 1)
	var payload zabbix.MediaTypeCreate
	require.NoError(t, creates[0].Decode(&payload))
	want := zabbix.MediaTypeCreate{
		Type:            zabbix.MediaTypeScript,
		Description:     "Alerta",
		ExecPath:        "zabbix-alerta",
		ExecParams:      "{ALERT.SENDTO}\n{ALERT.SUBJECT}\n{ALERT.MESSAGE}\n",
		MaxAttempts:     "5",
		AttemptInterval: "5s",
	}
	if diff := cmp.Diff(want, payload); diff != "" {
		t.Fatalf("mediatype.create payload mismatch (-want +got):\n%s", diff)
	}
}

func TestEnsureAlertChannelReusesExistingUnmodified(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.server.AddMediaType(zabbix.MediaType{ID: "1", Description: "Email", Type: "0"})
	f.server.AddMediaType(zabbix.MediaType{ID: "9", Description: "Alerta", Type: "1", ExecPath: "legacy-script", MaxAttempts: "1"})
	f.server.AddMediaType(zabbix.MediaType{ID: "12", Description: "Alerta", Type: "1"})

	channel, err := f.prov.EnsureAlertChannel(context.Background(), MediaChannelFromConfig(f.cfg.Media))
	require.NoError(t, err)
	assert.Equal(t, MediaChannel{ID: "9"}, channel)
	assert.Empty(t, f.server.CallsFor("mediatype.create"))
}

func TestBindUserMediaReplacesBinding(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.server.AddMediaType(zabbix.MediaType{ID: "4", Description: "Alerta"})
	spec := UserMediaFromConfig(f.cfg, "4")

	userID, err := f.prov.BindUserMedia(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, zabbixtest.AdminUserID, userID)

	spec.URL = "http://alerta.example.com/api"
	spec.APIKey = "demo-key"
	_, err = f.prov.BindUserMedia(context.Background(), spec)
	require.NoError(t, err)

	assert.Len(t, f.server.CallsFor("user.updatemedia"), 2)
	want := []zabbix.Media{{
		MediaTypeID: "4",
		SendTo:      "http://alerta.example.com/api;demo-key",
		Active:      zabbix.StatusEnabled,
		Severity:    zabbix.SeverityAll,
		Period:      "1-7,00:00-24:00",
	}}
	if diff := cmp.Diff(want, f.server.UserMedia(userID)); diff != "" {
		t.Fatalf("user media mismatch (-want +got):\n%s", diff)
	}
}

func TestBindUserMediaUnknownUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *config.Config) { cfg.User.Alias = "ops" })
	_, err := f.prov.BindUserMedia(context.Background(), UserMediaFromConfig(f.cfg, "4"))
	require.ErrorIs(t, err, zabbix.ErrNotFound)
	assert.Contains(t, err.Error(), `user "ops"`)
	assert.Empty(t, f.server.CallsFor("user.updatemedia"))
}

func TestUserMediaDestination(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://alerta/api", UserMediaSpec{URL: "http://alerta/api"}.Destination())
	assert.Equal(t, "http://alerta/api", UserMediaSpec{URL: "http://alerta/api", APIKey: "  "}.Destination())
	assert.Equal(t, "http://alerta/api;k", UserMediaSpec{URL: "http://alerta/api", APIKey: "k"}.Destination())
}

func TestUpsertActionRuleDuplicates(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	spec := ActionRuleFromConfig(f.cfg, "5", zabbixtest.AdminUserID)

	ids := make(map[string]struct{})
	for range 3 {
		outcome, err := f.prov.UpsertActionRule(context.Background(), spec)
		require.NoError(t, err)
		assert.False(t, outcome.Skipped)
		ids[outcome.ActionID] = struct{}{}
	}
	assert.Len(t, ids, 3)
	assert.Empty(t, f.server.CallsFor("action.get"))

	created := f.server.CreatedActions()
	require.Len(t, created, 3)
	for _, action := range created[1:] {
		if diff := cmp.Diff(created[0], action); diff != "" {
			t.Fatalf("duplicate action differs (-first +later):\n%s", diff)
		}
	}
}

func TestUpsertActionRuleSkipExisting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(cfg *config.Config) { cfg.Action.SkipExisting = true })
	spec := ActionRuleFromConfig(f.cfg, "5", zabbixtest.AdminUserID)

	first, err := f.prov.UpsertActionRule(context.Background(), spec)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := f.prov.UpsertActionRule(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, ActionOutcome{ActionID: first.ActionID, Skipped: true}, second)
	assert.Len(t, f.server.CallsFor("action.create"), 1)
	assert.Len(t, f.server.CallsFor("action.get"), 2)
}

func TestBuildActionRulePayload(t *testing.T) {
	t.Parallel()

	spec := ActionRuleSpec{
		Name:               "Forward to Alerta",
		MediaTypeID:        "5",
		UserID:             "3",
		EscPeriodSec:       120,
		Message:            MessageOptions{Environment: "Production", ConsoleURL: "http://zabbix.example.com/"},
		PauseInMaintenance: true,
	}
	action := BuildActionRule(spec)

	assert.Equal(t, zabbix.EventSourceTrigger, action.EventSource)
	assert.Equal(t, zabbix.StatusEnabled, action.Status)
	assert.Equal(t, 120, action.EscPeriod)
	assert.Equal(t, zabbix.MaintenancePause, action.MaintenanceMode)
	assert.Equal(t, "{TRIGGER.NAME}: {TRIGGER.STATUS}", action.DefShortData)
	assert.Equal(t, action.DefShortData, action.RecoveryShortData)
	assert.Equal(t, BuildMessage(spec.Message), action.DefLongData)
	assert.Equal(t, action.DefLongData, action.RecoveryLongData)
	assert.NotContains(t, action.DefLongData, "moreInfo")

	require.Len(t, action.Operations, 1)
	require.Len(t, action.RecoveryOperations, 1)
	fire := action.Operations[0]
	assert.Equal(t, zabbix.OperationSendMessage, fire.OperationType)
	assert.Equal(t, zabbix.DefaultMessageCustom, fire.OpMessage.DefaultMsg)
	assert.Equal(t, "5", fire.OpMessage.MediaTypeID)
	assert.Equal(t, "{TRIGGER.STATUS}: {TRIGGER.NAME}", fire.OpMessage.Subject)
	assert.Equal(t, FireMessage(spec.Message), fire.OpMessage.Message)
	assert.Equal(t, []zabbix.OpMessageUser{{UserID: "3"}}, fire.OpMessageUser)
	assert.Equal(t, RecoveryMessage(spec.Message), action.RecoveryOperations[0].OpMessage.Message)
}

func TestCreateActionEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.server.SetNextID(5)

	summary, err := f.prov.CreateAction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5", summary.MediaTypeID)
	assert.True(t, summary.MediaTypeCreated)
	assert.Equal(t, zabbixtest.AdminUserID, summary.UserID)
	assert.Equal(t, "6", summary.ActionID)

	var methods []string
	for _, call := range f.server.Calls() {
		methods = append(methods, call.Method)
	}
	assert.Equal(t, []string{
		"user.login", "apiinfo.version",
		"mediatype.get", "mediatype.create",
		"user.get", "user.updatemedia",
		"action.create",
	}, methods)

	var created struct {
		Description string `json:"description"`
		Type        int    `json:"type"`
	}
	require.NoError(t, f.server.CallsFor("mediatype.create")[0].Decode(&created))
	assert.Equal(t, "Alerta", created.Description)
	assert.Equal(t, "script", zabbix.MediaTypeKind(created.Type).String())

	media := f.server.UserMedia(zabbixtest.AdminUserID)
	require.Len(t, media, 1)
	assert.Equal(t, "5", media[0].MediaTypeID)
	assert.Equal(t, "http://alerta/api", media[0].SendTo)

	actions := f.server.CreatedActions()
	require.Len(t, actions, 1)
	assert.Equal(t, "5", actions[0].Operations[0].OpMessage.MediaTypeID)
	assert.Equal(t, "5", actions[0].RecoveryOperations[0].OpMessage.MediaTypeID)
	assert.Equal(t, "Forward to Alerta", actions[0].Name)
}

func TestCreateActionStopsOnBindFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.server.Fail("user.updatemedia", &zabbix.APIError{Code: -32500, Message: "Application error.", Data: "No permissions."})

	summary, err := f.prov.CreateAction(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind user media")
	var apiErr *zabbix.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "user.updatemedia", apiErr.Method)
	assert.NotEmpty(t, summary.MediaTypeID)
	assert.Empty(t, summary.ActionID)
	assert.Empty(t, f.server.CallsFor("action.create"))
}
