package main

import (
	"fmt"
	"log/slog"

	"docket/internal/archiving"
	"docket/internal/classifying"
	"docket/internal/config"
	"docket/internal/downloading"
	"docket/internal/extracting"
	"docket/internal/finalizing"
	"docket/internal/registry"
	"docket/internal/workflow"
)

func buildStageSet(cfg *config.Config, store *registry.Store, logger *slog.Logger) (workflow.StageSet, error) {
	archiver, err := archiving.NewArchiver(cfg, logger)
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("archive stage: %w", err)
	}
	extractor, err := extracting.NewExtractor(cfg, logger)
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("extract stage: %w", err)
	}
	finalizer, err := finalizing.NewFinalizer(cfg, logger)
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("finalize stage: %w", err)
	}

	return workflow.StageSet{
		Downloader: downloading.NewDownloader(cfg, store, logger),
		Classifier: classifying.NewClassifier(cfg, logger),
		Archiver:   archiver,
		Extractor:  extractor,
		Finalizer:  finalizer,
	}, nil
}
