package workflow

import "docket/internal/registry"

// ConfigureStages registers the concrete stage handlers the workflow will
// run, in pipeline order.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage

	if set.Downloader != nil {
		stages = append(stages, pipelineStage{
			name:    "download",
			handler: set.Downloader,
			claim: registry.Claim{
				From: []registry.Status{registry.StatusNew},
				To:   registry.StatusDownloading,
			},
			doneStatus: registry.StatusDownloaded,
			failStatus: registry.StatusDownloadFailed,
		})
	}
	if set.Classifier != nil {
		stages = append(stages, pipelineStage{
			name:    "classify",
			handler: set.Classifier,
			claim: registry.Claim{
				From: []registry.Status{registry.StatusDownloaded},
				To:   registry.StatusClassifying,
			},
			doneStatus: registry.StatusClassified,
			failStatus: registry.StatusClassificationFailed,
		})
	}
	if set.Archiver != nil {
		stages = append(stages, pipelineStage{
			name:    "store",
			handler: set.Archiver,
			claim: registry.Claim{
				From: []registry.Status{registry.StatusClassified, registry.StatusClassificationFailed},
				To:   registry.StatusStoring,
			},
			doneStatus: registry.StatusStored,
			failStatus: registry.StatusStoreFailed,
		})
	}
	if set.Extractor != nil {
		stages = append(stages, pipelineStage{
			name:    "extract",
			handler: set.Extractor,
			claim: registry.Claim{
				From: []registry.Status{registry.StatusStored},
				To:   registry.StatusExtracting,
			},
			doneStatus: registry.StatusExtracted,
			failStatus: registry.StatusExtractionFailed,
		})
	}
	if set.Finalizer != nil {
		stages = append(stages, pipelineStage{
			name:    "finalize",
			handler: set.Finalizer,
			claim: registry.Claim{
				From: []registry.Status{
					registry.StatusExtracted,
					registry.StatusExtractionFailed,
					registry.StatusMetadataStorageFailed,
				},
				To:                  registry.StatusSavingMetadata,
				UnprocessedOnly:     true,
				MaxFinalizeAttempts: m.cfg.Workflow.FinalizeRetryLimit,
			},
			doneStatus: registry.StatusProcessed,
			failStatus: registry.StatusMetadataStorageFailed,
		})
	}

	m.mu.Lock()
	m.stages = stages
	m.mu.Unlock()
}

func (m *Manager) configuredStages() []pipelineStage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stages := make([]pipelineStage, len(m.stages))
	copy(stages, m.stages)
	return stages
}
