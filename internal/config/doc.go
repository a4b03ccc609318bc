// Package config loads storetwin configuration from YAML.
//
// ${VAR} references are expanded from the environment before parsing. An
// optional .env file can populate the environment first. Load applies no
// defaults; LoadAndValidate is what commands use.
package config
