package provision

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"zac/internal/domain"
	"zac/internal/sender"
	"zac/internal/zabbix"

	"github.com/cenkalti/backoff/v4"
)

// ErrNoPusher is returned when the probe runs without a trapper sender.
var ErrNoPusher = errors.New("probe requires a trapper sender")

// ProbeResult reports one integration probe.
type ProbeResult struct {
	Host          string
	ItemID        string
	TriggerID     string
	Pushed        int
	Fired         bool
	Waited        time.Duration
	CleanupErrors []error
}

// Summary converts the result into its report form.
func (r ProbeResult) Summary() domain.ProbeSummary {
	summary := domain.ProbeSummary{
		Host:      r.Host,
		ItemID:    r.ItemID,
		TriggerID: r.TriggerID,
		Pushed:    r.Pushed,
		Fired:     r.Fired,
		Waited:    r.Waited,
	}
	for _, err := range r.CleanupErrors {
		summary.CleanupErrors = append(summary.CleanupErrors, err.Error())
	}
	return summary
}

// probeRun carries per-run ids between probe phases.
type probeRun struct {
	host   zabbix.Host
	key    string
	result *ProbeResult
}

// RunIntegrationProbe creates a transient item and trigger on the probe host, pushes two
// different values and checks that the trigger went to problem state. The transient
// records are always deleted afterwards; delete errors are logged and collected, never returned.
// With probe.poll the waits are bounded polls; otherwise a fixed sleep separates the pushes.
// Params: context.
// Returns: probe result; a wait timeout yields Fired=false without error.
func (p *Provisioner) RunIntegrationProbe(ctx context.Context) (result ProbeResult, err error) {
	cfg := p.cfg.Probe
	result.Host = cfg.Host
	if p.pusher == nil {
		return result, ErrNoPusher
	}

	hosts, err := p.api.Hosts(ctx)
	if err != nil {
		return result, err
	}
	host, err := zabbix.Lookup(hosts, fmt.Sprintf("probe host %q", cfg.Host), func(h zabbix.Host) bool { return h.Host == cfg.Host })
	if err != nil {
		return result, err
	}

	defer func() {
		result.CleanupErrors = p.cleanupProbe(ctx, result.ItemID, result.TriggerID)
	}()
	result.ItemID, result.TriggerID, err = p.createTrapperPair(ctx, host.ID, host.Host, cfg.Key)
	if err != nil {
		return result, fmt.Errorf("create probe item: %w", err)
	}
	p.logger.Info("probe item created", "host", host.Host, "itemid", result.ItemID, "triggerid", result.TriggerID)

	run := probeRun{host: host, key: cfg.Key, result: &result}
	started := p.clock.Now()
	if cfg.Poll {
		err = p.probePoll(ctx, run, started)
	} else {
		err = p.probeSleep(ctx, run, started)
	}
	result.Waited = p.clock.Now().Sub(started)
	if err != nil {
		return result, err
	}
	p.logger.Info("probe finished", "fired", result.Fired, "pushed", result.Pushed, "waited", result.Waited.String())
	return result, nil
}

// probeSleep pushes, sleeps the fixed wait, pushes again and reads the trigger once.
func (p *Provisioner) probeSleep(ctx context.Context, run probeRun, started time.Time) error {
	first := probeValue(started, "")
	if _, err := p.push(ctx, run, first); err != nil {
		return err
	}
	if err := p.clock.Sleep(ctx, time.Duration(p.cfg.Probe.WaitSec)*time.Second); err != nil {
		return err
	}
	if _, err := p.push(ctx, run, probeValue(p.clock.Now(), first)); err != nil {
		return err
	}
	fired, err := p.triggerFired(ctx, run)
	if err != nil {
		return err
	}
	run.result.Fired = fired
	return nil
}

// probePoll waits until the server stored the first value, then until the trigger fires.
// Unprocessed pushes are repeated on the next tick since a fresh item is unknown
// to the trapper until the server reloads its configuration cache.
func (p *Provisioner) probePoll(ctx context.Context, run probeRun, started time.Time) error {
	first := probeValue(started, "")
	pushed := false
	stored, err := p.pollUntil(ctx, func(ctx context.Context) (bool, error) {
		if !pushed {
			ok, err := p.push(ctx, run, first)
			if err != nil || !ok {
				return false, err
			}
			pushed = true
		}
		items, err := p.api.Items(ctx, run.result.ItemID)
		if err != nil {
			return false, err
		}
		return len(items) > 0 && items[0].LastValue == first, nil
	})
	if err != nil {
		return err
	}
	if !stored {
		p.logger.Warn("probe value was not stored before timeout", "itemid", run.result.ItemID, "value", first)
		return nil
	}

	second := probeValue(p.clock.Now(), first)
	pushed = false
	fired, err := p.pollUntil(ctx, func(ctx context.Context) (bool, error) {
		if !pushed {
			ok, err := p.push(ctx, run, second)
			if err != nil || !ok {
				return false, err
			}
			pushed = true
		}
		return p.triggerFired(ctx, run)
	})
	if err != nil {
		return err
	}
	if !fired {
		p.logger.Warn("probe trigger did not fire before timeout", "triggerid", run.result.TriggerID)
	}
	run.result.Fired = fired
	return nil
}

// pollUntil calls check with exponential backoff until it reports done or probe.timeout elapses.
// Params: context and condition check; a check error stops polling.
// Returns: true when the condition held, false on timeout.
func (p *Provisioner) pollUntil(ctx context.Context, check func(context.Context) (bool, error)) (bool, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Duration(p.cfg.Probe.PollIntervalMS) * time.Millisecond
	policy.MaxElapsedTime = time.Duration(p.cfg.Probe.TimeoutSec) * time.Second
	ticker := backoff.NewTicker(backoff.WithContext(policy, ctx))
	defer ticker.Stop()

	for range ticker.C {
		done, err := check(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, ctx.Err()
}

// push sends one value for the probe item.
// Returns: whether the server processed the value.
func (p *Provisioner) push(ctx context.Context, run probeRun, value string) (bool, error) {
	response, err := p.pusher.Send(ctx, sender.Metric{Host: run.host.Host, Key: run.key, Value: value})
	if err != nil {
		return false, fmt.Errorf("push probe value: %w", err)
	}
	if response.Processed == 0 {
		p.logger.Warn("probe value not processed", "host", run.host.Host, "key", run.key, "info", response.Info)
		return false, nil
	}
	run.result.Pushed++
	p.logger.Debug("probe value pushed", "host", run.host.Host, "key", run.key, "value", value)
	return true, nil
}

func (p *Provisioner) triggerFired(ctx context.Context, run probeRun) (bool, error) {
	triggers, err := p.api.Triggers(ctx, run.result.TriggerID)
	if err != nil {
		return false, err
	}
	return len(triggers) > 0 && triggers[0].Value == zabbix.TriggerProblem, nil
}

// cleanupProbe deletes the trigger before its item. It runs even when ctx is cancelled.
func (p *Provisioner) cleanupProbe(ctx context.Context, itemID, triggerID string) []error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if triggerID != "" {
		if err := p.api.DeleteTriggers(ctx, triggerID); err != nil {
			p.logger.Warn("probe trigger cleanup failed", "triggerid", triggerID, "error", err.Error())
			errs = append(errs, fmt.Errorf("delete trigger %s: %w", triggerID, err))
		}
	}
	if itemID != "" {
		if err := p.api.DeleteItems(ctx, itemID); err != nil {
			p.logger.Warn("probe item cleanup failed", "itemid", itemID, "error", err.Error())
			errs = append(errs, fmt.Errorf("delete item %s: %w", itemID, err))
		}
	}
	return errs
}

// probeValue renders a unix timestamp distinct from previous.
func probeValue(now time.Time, previous string) string {
	value := now.Unix()
	if last, err := strconv.ParseInt(previous, 10, 64); err == nil && value <= last {
		value = last + 1
	}
	return strconv.FormatInt(value, 10)
}
