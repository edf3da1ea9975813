// Package services provides cross-cutting helpers shared by the batch
// pipeline: sentinel error markers with wrap-and-classify helpers, and
// context annotations (batch, stage, block, pair) that the logging package
// turns into structured fields.
package services
