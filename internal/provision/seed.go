package provision

import (
	"context"
	"fmt"

	"zac/internal/config"
	"zac/internal/zabbix"
)

const (
	agentPort       = "10050"
	demoItemName    = "Timestamp delta (test)"
	demoItemKey     = "test.timestamp"
	demoTriggerName = "Timestamp has changed on {HOST.NAME}"
)

// SeedDemoTopology creates demo hosts, each with one trapper item and one change trigger.
// The configured server host is enabled first. The first failure stops the loop;
// hosts created before it are kept.
// Params: context and host specs in creation order.
// Returns: ids of hosts created so far and the first error.
func (p *Provisioner) SeedDemoTopology(ctx context.Context, hosts []config.HostSpec) ([]string, error) {
	if p.cfg.Seed.ServerHost != "" {
		if err := p.enableServerHost(ctx, p.cfg.Seed.ServerHost); err != nil {
			return nil, err
		}
	}

	groups, err := p.api.HostGroups(ctx)
	if err != nil {
		return nil, err
	}
	groupName := p.cfg.Seed.HostGroup
	group, err := zabbix.Lookup(groups, fmt.Sprintf("host group %q", groupName), func(g zabbix.HostGroup) bool { return g.Name == groupName })
	if err != nil {
		return nil, err
	}
	templates, err := p.api.Templates(ctx)
	if err != nil {
		return nil, err
	}

	created := make([]string, 0, len(hosts))
	for _, spec := range hosts {
		hostID, err := p.seedHost(ctx, spec, group.ID, templates)
		if hostID != "" {
			created = append(created, hostID)
		}
		if err != nil {
			return created, fmt.Errorf("seed host %q: %w", spec.Name, err)
		}
	}
	return created, nil
}

func (p *Provisioner) enableServerHost(ctx context.Context, name string) error {
	hosts, err := p.api.Hosts(ctx)
	if err != nil {
		return err
	}
	host, err := zabbix.Lookup(hosts, fmt.Sprintf("host %q", name), func(h zabbix.Host) bool { return h.Name == name })
	if err != nil {
		return err
	}
	if err := p.api.UpdateHostStatus(ctx, host.ID, zabbix.StatusEnabled); err != nil {
		return err
	}
	p.logger.Info("server host enabled", "host", name, "hostid", host.ID)
	return nil
}

// seedHost returns the host id as soon as the host exists, even when item or trigger creation fails.
func (p *Provisioner) seedHost(ctx context.Context, spec config.HostSpec, groupID string, templates []zabbix.Template) (string, error) {
	template, err := zabbix.Lookup(templates, fmt.Sprintf("template %q", spec.Template), func(t zabbix.Template) bool { return t.Name == spec.Template })
	if err != nil {
		return "", err
	}
	hostID, err := p.api.CreateHost(ctx, zabbix.HostCreate{
		Host: spec.Name,
		Interfaces: []zabbix.HostInterface{{
			Type:  zabbix.InterfaceAgent,
			Main:  1,
			UseIP: zabbix.ConnectByDNS,
			DNS:   spec.DNS,
			Port:  agentPort,
		}},
		Groups:    []zabbix.GroupRef{{GroupID: groupID}},
		Templates: []zabbix.TemplateRef{{TemplateID: template.ID}},
	})
	if err != nil {
		return "", err
	}
	itemID, triggerID, err := p.createTrapperPair(ctx, hostID, spec.Name, demoItemKey)
	if err != nil {
		return hostID, err
	}
	p.logger.Info("demo host seeded", "host", spec.Name, "hostid", hostID, "itemid", itemID, "triggerid", triggerID)
	return hostID, nil
}

// createTrapperPair creates a text trapper item and a trigger firing on every value change.
// Params: context, host id, host technical name used in the expression, and item key.
// Returns: item and trigger ids; item id is set when only the trigger failed.
func (p *Provisioner) createTrapperPair(ctx context.Context, hostID, hostName, key string) (string, string, error) {
	itemID, err := p.api.CreateItem(ctx, zabbix.ItemCreate{
		Name:      demoItemName,
		Type:      zabbix.ItemTrapper,
		Key:       key,
		ValueType: zabbix.ValueText,
		HostID:    hostID,
		Status:    zabbix.StatusEnabled,
	})
	if err != nil {
		return "", "", err
	}
	triggerID, err := p.api.CreateTrigger(ctx, zabbix.TriggerCreate{
		Description: demoTriggerName,
		Expression:  ChangeExpression(hostName, key),
		Type:        zabbix.TriggerMultipleEvents,
		Priority:    zabbix.PriorityHigh,
		Status:      zabbix.StatusEnabled,
	})
	if err != nil {
		return itemID, "", err
	}
	return itemID, triggerID, nil
}

// ChangeExpression is a trigger expression that is true when the item value changed.
func ChangeExpression(hostName, key string) string {
	return fmt.Sprintf("{%s:%s.diff()}>0", hostName, key)
}
