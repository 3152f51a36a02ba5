// Package config provides configuration parsing and management for the directory store.
//
// Configuration is YAML with environment substitution:
//
//	storage:
//	  dataDir: ${DIRSTORE_DATA:-/var/lib/dirstore}
//	  indexBackend: pebble
//	  suffix: dc=example,dc=com
//	  checkpointInterval: 5m
//	logging:
//	  level: info
//	  format: json
//	indexes:
//	  - attribute: uid
//	  - attribute: uidNumber
//	    keyType: long
//
// Missing values fall back to DefaultConfig. ValidateConfig reports every
// problem at once as ValidationError values.
package config
