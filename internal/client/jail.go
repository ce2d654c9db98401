package client

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fail2ban-exporter/internal/protocol"
)

// JailSnapshot is the state of one jail as reported by "status <jail>"
type JailSnapshot struct {
	Name            string
	CurrentlyFailed int
	TotalFailed     int
	CurrentlyBanned int
	TotalBanned     int
	FilterFiles     []string
	BannedIPs       map[string]struct{}
}

// BannedList returns the banned addresses in sorted order
func (j JailSnapshot) BannedList() []string {
	out := make([]string, 0, len(j.BannedIPs))
	for ip := range j.BannedIPs {
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}

// JailNames lists the configured jails
func (c *Client) JailNames(ctx context.Context) ([]string, error) {
	payload, err := c.Do(ctx, protocol.NewCommand("status"))
	if err != nil {
		return nil, fmt.Errorf("failed to get jail list: %w", err)
	}

	sections, ok := protocol.List(payload)
	if !ok || len(sections) < 2 {
		return nil, shapeError("status", payload)
	}
	entry, ok := protocol.List(sections[1])
	if !ok || len(entry) < 1 {
		return nil, shapeError("status", payload)
	}

	// the daemon sends ("Jail list", "a, b"); separate strings are accepted too
	names := []string{}
	for _, item := range entry[1:] {
		var parts []string
		switch v := item.(type) {
		case string:
			parts = strings.Split(v, ",")
		default:
			list, ok := protocol.Strings(v)
			if !ok {
				return nil, shapeError("status", payload)
			}
			parts = list
		}
		for _, p := range parts {
			if name := strings.TrimSpace(p); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// JailDetail fetches the counters and banned addresses of one jail
func (c *Client) JailDetail(ctx context.Context, name string) (JailSnapshot, error) {
	payload, err := c.Do(ctx, protocol.NewCommand("status", name))
	if err != nil {
		return JailSnapshot{}, fmt.Errorf("failed to get status of jail %q: %w", name, err)
	}
	op := "status " + name

	sections, ok := protocol.List(payload)
	if !ok || len(sections) < 2 {
		return JailSnapshot{}, shapeError(op, payload)
	}
	filter, err := section(op, sections[0])
	if err != nil {
		return JailSnapshot{}, err
	}
	action, err := section(op, sections[1])
	if err != nil {
		return JailSnapshot{}, err
	}

	jail := JailSnapshot{Name: name, BannedIPs: map[string]struct{}{}}
	fields := []struct {
		src []any
		dst *int
	}{
		{filter[0], &jail.CurrentlyFailed},
		{filter[1], &jail.TotalFailed},
		{action[0], &jail.CurrentlyBanned},
		{action[1], &jail.TotalBanned},
	}
	for _, f := range fields {
		n, ok := protocol.Int(f.src[1])
		if !ok {
			return JailSnapshot{}, shapeError(op, payload)
		}
		*f.dst = n
	}

	files, ok := protocol.Strings(filter[2][1])
	if !ok {
		return JailSnapshot{}, shapeError(op, payload)
	}
	jail.FilterFiles = files

	ips, ok := protocol.Strings(action[2][1])
	if !ok {
		return JailSnapshot{}, shapeError(op, payload)
	}
	for _, ip := range ips {
		jail.BannedIPs[ip] = struct{}{}
	}
	return jail, nil
}

// BanIP bans an address in a jail and reports whether the daemon applied it
func (c *Client) BanIP(ctx context.Context, ip, jail string) (bool, error) {
	payload, err := c.Do(ctx, protocol.NewCommand("set", jail, "banip", ip))
	if err != nil {
		return false, fmt.Errorf("failed to ban %s in jail %q: %w", ip, jail, err)
	}
	return applied(payload), nil
}

// UnbanIP unbans an address from one jail, or from all jails when jail is empty
func (c *Client) UnbanIP(ctx context.Context, ip, jail string) (bool, error) {
	cmd := protocol.NewCommand("unban", ip)
	if jail != "" {
		cmd = protocol.NewCommand("set", jail, "unbanip", ip)
	}
	payload, err := c.Do(ctx, cmd)
	if err != nil {
		return false, fmt.Errorf("failed to unban %s: %w", ip, err)
	}
	return applied(payload), nil
}

func applied(payload any) bool {
	if items, ok := protocol.List(payload); ok {
		if len(items) == 0 {
			return false
		}
		payload = items[0]
	}
	n, ok := protocol.Int(payload)
	return ok && n == 1
}

// section unpacks ("Filter", [(label, value) x3]) into three pairs
func section(op string, v any) ([3][]any, error) {
	var out [3][]any
	body, ok := protocol.Pair(v)
	if !ok {
		return out, shapeError(op, v)
	}
	items, ok := protocol.List(body)
	if !ok || len(items) < 3 {
		return out, shapeError(op, v)
	}
	for i := 0; i < 3; i++ {
		pair, ok := protocol.List(items[i])
		if !ok || len(pair) < 2 {
			return out, shapeError(op, v)
		}
		out[i] = pair
	}
	return out, nil
}

func shapeError(op string, payload any) error {
	return &protocol.ProtocolError{Op: op, Err: fmt.Errorf("unexpected payload %v", payload)}
}
