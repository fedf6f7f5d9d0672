// Package config loads, normalizes, and validates docket's TOML
// configuration.
//
// Load resolves the config path (explicit flag or
// ~/.config/docket/config.toml), parses it over Default values, expands
// home-relative paths, backfills zero values, and rejects settings that
// would leave the pipeline inoperable. The embedded sample_config.toml is
// the canonical reference for every knob and is written out by
// `docket config init`.
package config
