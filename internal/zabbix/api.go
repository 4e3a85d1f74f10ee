package zabbix

import (
	"context"
	"fmt"
)

// MediaTypes returns all media types with full output.
func (c *Client) MediaTypes(ctx context.Context) ([]MediaType, error) {
	var out []MediaType
	if err := c.Call(ctx, "mediatype.get", map[string]any{"output": "extend"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateMediaType creates one media type.
// Params: context and create payload.
// Returns: new media type id.
func (c *Client) CreateMediaType(ctx context.Context, mediaType MediaTypeCreate) (string, error) {
	var out struct {
		IDs []string `json:"mediatypeids"`
	}
	if err := c.Call(ctx, "mediatype.create", mediaType, &out); err != nil {
		return "", err
	}
	return firstID("mediatype.create", out.IDs)
}

// Users returns all users with full output.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.Call(ctx, "user.get", map[string]any{"output": "extend"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateUserMedia replaces the complete media list of one user.
// Params: context, user id, and the new media list.
// Returns: API or transport error.
func (c *Client) UpdateUserMedia(ctx context.Context, userID string, medias ...Media) error {
	params := map[string]any{
		"users":  map[string]string{"userid": userID},
		"medias": medias,
	}
	return c.Call(ctx, "user.updatemedia", params, nil)
}

// Actions returns action rules with operations, optionally filtered by exact name.
// Params: context and name filter (empty for all).
// Returns: matching action rules.
func (c *Client) Actions(ctx context.Context, name string) ([]Action, error) {
	params := map[string]any{
		"output":                   "extend",
		"selectOperations":         "extend",
		"selectRecoveryOperations": "extend",
	}
	if name != "" {
		params["filter"] = map[string]any{"name": []string{name}}
	}
	var out []Action
	if err := c.Call(ctx, "action.get", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAction creates one action rule.
// Params: context and create payload.
// Returns: new action id.
func (c *Client) CreateAction(ctx context.Context, action ActionCreate) (string, error) {
	var out struct {
		IDs []string `json:"actionids"`
	}
	if err := c.Call(ctx, "action.create", action, &out); err != nil {
		return "", err
	}
	return firstID("action.create", out.IDs)
}

// Hosts returns all hosts.
func (c *Client) Hosts(ctx context.Context) ([]Host, error) {
	var out []Host
	params := map[string]any{"output": []string{"hostid", "host", "name", "status"}}
	if err := c.Call(ctx, "host.get", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateHostStatus enables or disables one host.
func (c *Client) UpdateHostStatus(ctx context.Context, hostID string, status Status) error {
	params := map[string]any{"hostid": hostID, "status": status}
	return c.Call(ctx, "host.update", params, nil)
}

// CreateHost creates one host.
// Params: context and create payload.
// Returns: new host id.
func (c *Client) CreateHost(ctx context.Context, host HostCreate) (string, error) {
	var out struct {
		IDs []string `json:"hostids"`
	}
	if err := c.Call(ctx, "host.create", host, &out); err != nil {
		return "", err
	}
	return firstID("host.create", out.IDs)
}

// HostGroups returns all host groups.
func (c *Client) HostGroups(ctx context.Context) ([]HostGroup, error) {
	var out []HostGroup
	if err := c.Call(ctx, "hostgroup.get", map[string]any{"output": "extend"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Templates returns all templates.
func (c *Client) Templates(ctx context.Context) ([]Template, error) {
	var out []Template
	if err := c.Call(ctx, "template.get", map[string]any{"output": "extend"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateItem creates one item.
// Params: context and create payload.
// Returns: new item id.
func (c *Client) CreateItem(ctx context.Context, item ItemCreate) (string, error) {
	var out struct {
		IDs []string `json:"itemids"`
	}
	if err := c.Call(ctx, "item.create", item, &out); err != nil {
		return "", err
	}
	return firstID("item.create", out.IDs)
}

// Items returns items by id with their last received value.
func (c *Client) Items(ctx context.Context, itemIDs ...string) ([]Item, error) {
	params := map[string]any{
		"output":  []string{"itemid", "hostid", "key_", "lastvalue", "lastclock"},
		"itemids": itemIDs,
	}
	var out []Item
	if err := c.Call(ctx, "item.get", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteItems deletes items by id.
func (c *Client) DeleteItems(ctx context.Context, itemIDs ...string) error {
	return c.Call(ctx, "item.delete", itemIDs, nil)
}

// CreateTrigger creates one trigger.
// Params: context and create payload.
// Returns: new trigger id.
func (c *Client) CreateTrigger(ctx context.Context, trigger TriggerCreate) (string, error) {
	var out struct {
		IDs []string `json:"triggerids"`
	}
	if err := c.Call(ctx, "trigger.create", trigger, &out); err != nil {
		return "", err
	}
	return firstID("trigger.create", out.IDs)
}

// Triggers returns triggers by id with their evaluated value.
func (c *Client) Triggers(ctx context.Context, triggerIDs ...string) ([]Trigger, error) {
	params := map[string]any{
		"output":     []string{"triggerid", "description", "expression", "value", "lastchange", "priority"},
		"triggerids": triggerIDs,
	}
	var out []Trigger
	if err := c.Call(ctx, "trigger.get", params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTriggers deletes triggers by id.
func (c *Client) DeleteTriggers(ctx context.Context, triggerIDs ...string) error {
	return c.Call(ctx, "trigger.delete", triggerIDs, nil)
}

func firstID(method string, ids []string) (string, error) {
	if len(ids) == 0 || ids[0] == "" {
		return "", fmt.Errorf("%s: %w", method, ErrEmptyResult)
	}
	return ids[0], nil
}
