// Package config defines the supervisor settings and provides helpers to
// load, validate and save them in YAML format.
//
// Values from the YAML file can be overridden with SECURITY_ZONE_* environment
// variables, optionally read from a .env file.
package config
