package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
)

// newViper returns a viper bound to the environment and, when envFile exists,
// to that dotenv file. Environment variables win over the file.
func newViper(envFile string) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()

	if envFile == "" {
		return v, nil
	}
	if _, err := os.Stat(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, nil
		}
		return nil, fmt.Errorf("failed to stat env file %s: %w", envFile, err)
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", envFile, err)
	}
	return v, nil
}

func loadServerConfig(envFile string) (*mysqlmcp.ServerConfig, error) {
	v, err := newViper(envFile)
	if err != nil {
		return nil, err
	}
	return mysqlmcp.LoadServerConfig(v)
}
