package testsupport

import (
	"context"
	"fmt"
	"testing"

	"docket/internal/config"
	"docket/internal/identity"
	"docket/internal/registry"
)

// MustOpenStore opens a registry.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// RegisterDocument registers a document for tests using the provided store.
func RegisterDocument(t testing.TB, store *registry.Store, sourceFileID, fileName string) *registry.Document {
	t.Helper()

	docID, err := identity.DocID(sourceFileID)
	if err != nil {
		t.Fatalf("identity.DocID: %v", err)
	}
	doc, _, err := store.Register(context.Background(), registry.NewDocument{
		DocID:        docID,
		SourceFileID: sourceFileID,
		FileName:     fileName,
		MimeType:     "application/pdf",
	})
	if err != nil {
		t.Fatalf("store.Register: %v", err)
	}
	return doc
}

// SeedDocuments registers count documents with generated source identifiers.
func SeedDocuments(t testing.TB, store *registry.Store, count int) []*registry.Document {
	t.Helper()

	docs := make([]*registry.Document, 0, count)
	for i := 0; i < count; i++ {
		docs = append(docs, RegisterDocument(t, store, fmt.Sprintf("source-%d", i), fmt.Sprintf("scan_%03d.pdf", i)))
	}
	return docs
}
