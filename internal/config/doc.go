// Package config defines the engine configuration surface, its defaults,
// validation, and YAML loading.
package config
