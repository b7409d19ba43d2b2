// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Secrets (API token, database and Redis passwords) are normally supplied that
// way, optionally from a .env file loaded with LoadEnvFile.
package config
