// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Huk9uri/dawata-roomd/service"
)

const defaultConfigPath = "config/config.toml"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			log.Fatalf("failed to issue token: %s", err.Error())
		}
		return
	}

	var configPath string
	flag.StringVar(&configPath, "config", defaultConfigPath, "Path to the configuration file for the roomd service.")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %s", err.Error())
	}

	if err := cfg.IsValid(); err != nil {
		log.Fatalf("failed to validate config: %s", err.Error())
	}

	srvc, err := service.New(cfg)
	if err != nil {
		log.Fatalf("failed to create service: %s", err.Error())
	}

	if err := srvc.Start(); err != nil {
		log.Fatalf("failed to start service: %s", err.Error())
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := srvc.Stop(); err != nil {
		log.Fatalf("failed to stop service: %s", err.Error())
	}
}
