// Package workflow advances registered documents through the configured
// pipeline stages.
//
// The Manager runs a pool of workers that lease documents with conditional
// status transitions, reclaims stale work via heartbeats, and feeds documents
// into registered stage handlers (downloader, classifier, archiver,
// extractor, finalizer) while capturing progress and failure metadata. It
// also aggregates registry stats, calls stage health checks, and emits
// notifications when documents finish or fail.
//
// Every claim is a compare-and-set on the document's status, so at most one
// worker ever runs a stage for a given document, and re-running a stage
// after a crash resumes from the last persisted resting status.
//
// Add new lifecycle stages by extending StageSet, updating the registry
// status enum, and teaching the manager how to transition documents; this
// package is the authoritative home for that coordination logic.
package workflow
