// Package config defines configuration structures for the volsplit CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (VOLSPLIT_ prefix)
//   - YAML configuration file
//
// Flags override the environment, which overrides the file.
//
// # File Format
//
//	bucket: s3://volumes?region=eu-west-1
//	workers: 8
//	log_level: debug
//	shards:
//	  format: zstd
//	  compression: 3
//	  block: 256x256x64
//	  overlap: 2x2x0
//	  max_size: 512MiB
//	retry:
//	  attempts: 5
//	  backoff: 200ms
//	  max_backoff: 10s
package config
