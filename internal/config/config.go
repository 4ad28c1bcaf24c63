// Package config parses Carbon's process configuration from the
// environment: listener addresses, data directory, bootstrap admin
// credentials, and optional TLS cert/key paths.
package config

import (
	"os"
	"strconv"
)

// Config holds every environment-sourced setting Carbon's entrypoint needs.
type Config struct {
	TCPAddr  string
	HTTPAddr string
	DataDir  string

	BootstrapUser     string
	BootstrapPassword string

	TLSCertPath string
	TLSKeyPath  string

	Development bool
}

// FromEnv reads CARBON_* environment variables, falling back to sane
// defaults for local development.
func FromEnv() Config {
	return Config{
		TCPAddr:           getEnv("CARBON_TCP_ADDR", "127.0.0.1:5500"),
		HTTPAddr:          getEnv("CARBON_HTTP_ADDR", "127.0.0.1:8080"),
		DataDir:           getEnv("CARBON_DATA_DIR", "./data"),
		BootstrapUser:     getEnv("CARBON_BOOTSTRAP_USER", "admin"),
		BootstrapPassword: getEnv("CARBON_BOOTSTRAP_PASSWORD", "admin123"),
		TLSCertPath:       os.Getenv("CARBON_TLS_CERT"),
		TLSKeyPath:        os.Getenv("CARBON_TLS_KEY"),
		Development:       getBoolEnv("CARBON_DEV", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
