// Package config loads, normalizes, and validates coalesce configuration
// from TOML. Path fields are tilde-expanded and made absolute; the matching
// weight rubric is validated to sum to exactly 100 so confidence scores stay
// comparable across deployments.
package config
