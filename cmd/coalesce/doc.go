// Package main hosts the coalesce CLI entrypoint and command graph.
//
// The Cobra-based command tree surfaces the batch engine (run, scan, plan,
// verify), the review workflow for pairs routed to a human, batch history,
// JSONL import, configuration scaffolding, and environment checks. It
// centralizes configuration resolution, store access, and structured logging
// setup so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
