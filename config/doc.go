// Package config loads the docsync configuration and builds database connections from it.
//
// Values come from an optional YAML file named by DOCSYNC_CONFIG_FILE and from environment
// variables, which take precedence. The data store and message hub endpoints also honour the
// legacy NOWY_*, LR_* and TS_* variable names.
package config
