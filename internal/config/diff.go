package config

import "reflect"

// ChangedSections lists the top-level sections that differ between two configs.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var out []string
	check := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	check("telegram", oldCfg.Telegram, newCfg.Telegram)
	check("logging", oldCfg.Logging, newCfg.Logging)
	check("duty", oldCfg.Duty, newCfg.Duty)
	check("sources", oldCfg.Sources, newCfg.Sources)
	check("notifier", oldCfg.Notifier, newCfg.Notifier)
	check("storage", oldCfg.Storage, newCfg.Storage)
	check("email", oldCfg.Email, newCfg.Email)
	check("http", oldCfg.HTTP, newCfg.HTTP)
	check("language", oldCfg.Language, newCfg.Language)
	return out
}

// LiveSections are applied without a restart.
var LiveSections = map[string]bool{"logging": true}
