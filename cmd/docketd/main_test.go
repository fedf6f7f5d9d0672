package main

import (
	"testing"

	"docket/internal/logging"
	"docket/internal/testsupport"
)

func TestBuildStageSet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	set, err := buildStageSet(cfg, store, logger)
	if err != nil {
		t.Fatalf("buildStageSet: %v", err)
	}

	if set.Downloader == nil {
		t.Error("downloader handler is nil")
	}
	if set.Classifier == nil {
		t.Error("classifier handler is nil")
	}
	if set.Archiver == nil {
		t.Error("archiver handler is nil")
	}
	if set.Extractor == nil {
		t.Error("extractor handler is nil")
	}
	if set.Finalizer == nil {
		t.Error("finalizer handler is nil")
	}
}
