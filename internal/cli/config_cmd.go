// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration management for the clausedesk CLI.
//
// Handles "clausedesk config <subcommand>": show, get, set, path, keys.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/clausedesk/clausedesk-tui/internal/config"
)

// HandleConfig dispatches the config subcommands.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "show", "":
		return configShow(args)
	case "init":
		return configInit(args)
	case "get":
		return configGet(args)
	case "set":
		return configSet(args)
	case "path":
		return configPath(args)
	case "keys":
		return configKeys(args)
	default:
		return fmt.Errorf("unknown config subcommand: %s", args.Subcommand)
	}
}

// configInit writes a default config file, refusing to clobber one that
// already exists.
func configInit(args Args) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := config.Save(config.Default()); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config init", map[string]string{"path": path}).Print()
	}
	fmt.Println("Wrote", path)
	return nil
}

func configShow(args Args) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if args.JSON {
		// SECURITY: Never print the auth token.
		redacted := *cfg
		if redacted.Server.Token != "" {
			redacted.Server.Token = "<redacted>"
		}
		return NewJSONResponse("config show", redacted).Print()
	}

	for _, key := range config.AllKeys() {
		val, err := cfg.Get(key)
		if err != nil {
			continue
		}
		if key == "server.token" && val != "" {
			val = "<redacted>"
		}
		fmt.Printf("%-22s = %v\n", key, val)
	}
	return nil
}

func configGet(args Args) error {
	if len(args.Raw) == 0 {
		return errors.New("usage: clausedesk config get <key>")
	}
	key := args.Raw[0]
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	val, err := cfg.Get(key)
	if err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config get", map[string]any{key: val}).Print()
	}
	fmt.Println(val)
	return nil
}

func configSet(args Args) error {
	if len(args.Raw) < 2 {
		return errors.New("usage: clausedesk config set <key> <value>")
	}
	key, value := args.Raw[0], strings.Join(args.Raw[1:], " ")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return err
	}

	if args.JSON {
		return NewJSONResponse("config set", map[string]string{key: value}).Print()
	}
	fmt.Printf("%s = %s\n", key, value)
	return nil
}

func configPath(args Args) error {
	path, err := config.ConfigPath()
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("config path", map[string]string{"path": path}).Print()
	}
	fmt.Println(path)
	return nil
}

func configKeys(args Args) error {
	keys := config.AllKeys()
	if args.JSON {
		return NewJSONResponse("config keys", keys).Print()
	}
	for _, key := range keys {
		fmt.Println(key)
	}
	return nil
}
