// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/Huk9uri/dawata-roomd/service/credential"
)

// runToken issues a signed room credential using the signing key of the
// loaded config and writes it to out.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)

	configPath := fs.String("config", defaultConfigPath, "Path to the configuration file for the roomd service.")
	identity := fs.String("identity", "", "Identity of the participant.")
	roomID := fs.String("room", "", "Room the credential grants access to.")
	perms := fs.String("perms", "publish_audio,publish_video,subscribe", "Comma separated list of permissions.")
	ttl := fs.Duration("ttl", 0, "Lifetime of the credential. Defaults to the configured default TTL.")
	name := fs.String("name", "", "Display name of the participant.")
	capacity := fs.Int("capacity", 0, "Requested room capacity, used when the credential creates the room.")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *identity == "" {
		return fmt.Errorf("invalid identity value: should not be empty")
	}
	if *roomID == "" {
		return fmt.Errorf("invalid room value: should not be empty")
	}
	if *ttl < 0 {
		return fmt.Errorf("invalid ttl value: should not be negative")
	}
	if *capacity < 0 {
		return fmt.Errorf("invalid capacity value: should not be negative")
	}

	permissions, err := parsePermissions(*perms)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Credential.IsValid(); err != nil {
		return fmt.Errorf("failed to validate credential config: %w", err)
	}

	if *ttl == 0 {
		*ttl = cfg.Credential.DefaultTTL()
	}

	issuer, err := credential.NewIssuer(cfg.Credential.SigningKey)
	if err != nil {
		return err
	}

	claims := credential.NewClaims(*identity, *roomID, *ttl, permissions...)
	claims.Name = *name
	claims.RoomCapacity = *capacity

	token, err := issuer.Issue(claims)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func parsePermissions(list string) ([]credential.Permission, error) {
	var perms []credential.Permission
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		perm := credential.Permission(p)
		if err := perm.IsValid(); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, nil
}
