// Package config finds the sawdisk configuration file when none is given on
// the command line.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// SearchPaths lists the directories searched for sawdisk.{yaml,json,toml},
// in order.
func SearchPaths() []string {
	return []string{".", "$HOME/.sawdisk", "/etc/sawdisk"}
}

// Locate returns explicit when it is set. Otherwise it returns the first
// sawdisk config file found in dirs (SearchPaths when dirs is empty), or ""
// when there is none so that defaults and SAWDISK_* variables apply.
func Locate(explicit string, dirs ...string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if len(dirs) == 0 {
		dirs = SearchPaths()
	}
	v := viper.New()
	v.SetConfigName("sawdisk")
	for _, dir := range dirs {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}
