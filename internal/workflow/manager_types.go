package workflow

import (
	"docket/internal/registry"
	"docket/internal/stage"
)

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Downloader stage.Handler
	Classifier stage.Handler
	Archiver   stage.Handler
	Extractor  stage.Handler
	Finalizer  stage.Handler
}

type pipelineStage struct {
	name       string
	handler    stage.Handler
	claim      registry.Claim
	doneStatus registry.Status
	failStatus registry.Status
}
