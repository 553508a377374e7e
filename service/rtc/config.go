// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package rtc

import (
	"encoding/json"
	"fmt"
	"net"
	"strings"
)

type EngineConfig struct {
	// ICEAddressUDP specifies the UDP address the engine should listen on.
	ICEAddressUDP string `toml:"ice_address_udp"`
	// ICEPortUDP specifies the UDP port the engine should listen to.
	ICEPortUDP int `toml:"ice_port_udp"`
	// ICEHostOverride optionally specifies an IP address to be used as the
	// main host ICE candidate.
	ICEHostOverride string `toml:"ice_host_override"`
	// A list of ICE server (STUN/TURN) configurations to use.
	ICEServers ICEServers `toml:"ice_servers"`
	// EnableIPv6 specifies whether or not IPv6 should be used.
	EnableIPv6 bool `toml:"enable_ipv6"`
	// PLIRate is the maximum number of keyframe requests per second
	// forwarded to a publisher for a given track.
	PLIRate float64 `toml:"pli_rate"`
}

func (c EngineConfig) IsValid() error {
	if c.ICEAddressUDP != "" && net.ParseIP(c.ICEAddressUDP) == nil {
		return fmt.Errorf("invalid ICEAddressUDP value: not a valid address")
	}

	if c.ICEPortUDP < 80 || c.ICEPortUDP > 49151 {
		return fmt.Errorf("invalid ICEPortUDP value: %d is not in allowed range [80, 49151]", c.ICEPortUDP)
	}

	if c.ICEHostOverride != "" && net.ParseIP(c.ICEHostOverride) == nil {
		return fmt.Errorf("invalid ICEHostOverride value: not a valid address")
	}

	if err := c.ICEServers.IsValid(); err != nil {
		return fmt.Errorf("invalid ICEServers value: %w", err)
	}

	if c.PLIRate <= 0 {
		return fmt.Errorf("invalid PLIRate value: should be a positive number")
	}

	return nil
}

func (c *EngineConfig) SetDefaults() {
	c.ICEPortUDP = 8443
	c.PLIRate = 1
}

type ICEServerConfig struct {
	URLs       []string `toml:"urls" json:"urls"`
	Username   string   `toml:"username,omitempty" json:"username,omitempty"`
	Credential string   `toml:"credential,omitempty" json:"credential,omitempty"`
}

type ICEServers []ICEServerConfig

func (c ICEServerConfig) IsValid() error {
	if len(c.URLs) == 0 {
		return fmt.Errorf("invalid empty URLs")
	}
	for _, u := range c.URLs {
		if u == "" {
			return fmt.Errorf("invalid empty URL")
		}
	}
	if !c.IsSTUN() && !c.IsTURN() {
		return fmt.Errorf("URL is not a valid STUN/TURN server")
	}
	return nil
}

func (c ICEServerConfig) IsTURN() bool {
	return hasPrefixes(c.URLs, "turn:", "turns:")
}

func (c ICEServerConfig) IsSTUN() bool {
	return hasPrefixes(c.URLs, "stun:", "stuns:")
}

func hasPrefixes(urls []string, prefixes ...string) bool {
	for _, u := range urls {
		var ok bool
		for _, p := range prefixes {
			if strings.HasPrefix(u, p) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return len(urls) > 0
}

func (s ICEServers) IsValid() error {
	for _, cfg := range s {
		if err := cfg.IsValid(); err != nil {
			return err
		}
	}
	return nil
}

func (s ICEServers) getSTUN() string {
	for _, cfg := range s {
		if cfg.IsSTUN() {
			return cfg.URLs[0]
		}
	}
	return ""
}

// Decode parses the value of an environment variable, either a JSON list
// of URLs or a JSON list of server objects.
func (s *ICEServers) Decode(value string) error {
	var urls []string
	if err := json.Unmarshal([]byte(value), &urls); err == nil {
		*s = ICEServers{{URLs: urls}}
		return nil
	}

	return json.Unmarshal([]byte(value), (*[]ICEServerConfig)(s))
}

func (s *ICEServers) UnmarshalTOML(data any) error {
	d, ok := data.([]any)
	if !ok {
		return fmt.Errorf("invalid type %T", data)
	}

	servers := make(ICEServers, 0, len(d))
	for _, obj := range d {
		var server ICEServerConfig

		switch t := obj.(type) {
		case string:
			server.URLs = append(server.URLs, t)
		case map[string]any:
			urls, _ := t["urls"].([]any)
			for _, u := range urls {
				uVal, _ := u.(string)
				server.URLs = append(server.URLs, uVal)
			}
			server.Username, _ = t["username"].(string)
			server.Credential, _ = t["credential"].(string)
		default:
			return fmt.Errorf("unknown type %T", t)
		}

		servers = append(servers, server)
	}

	*s = servers

	return nil
}
