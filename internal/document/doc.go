// Package document holds the pure domain rules of the pipeline: document
// types, classification results, the extraction gate, extracted payload
// variants, the final status decision, and canonical archive paths. Nothing
// in this package touches the database, the filesystem, or the network,
// which keeps the rules cheap to test and safe to call from any stage.
package document
