// Package config loads the store settings.
//
// Sources are applied in order, later ones winning:
//
//  1. DefaultConfig
//  2. a YAML file
//  3. .env files (never overriding variables already set)
//  4. MODELSTORE_* environment variables
//
// Example file:
//
//	data_dir: ~/.modelstore
//	storage_mode: auto
//	log:
//	  level: info
//	  format: text
//	sync:
//	  interval: 30s
//	  watch_dir: ~/models/sales
//	backup:
//	  retention: 5
package config
