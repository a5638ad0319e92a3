// Package config provides configuration loading for the serving
// controller: defaults, YAML files, and environment overrides, in
// that priority order.
package config
