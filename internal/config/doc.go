// Package config loads buildwarden's configuration.
//
// Configuration lives in a single directory, by default ~/.config/buildwarden,
// overridable with --config-path. The directory holds:
//   - config.yaml: remote API, plugin allowlist, waits, fleet and manager tuning
//   - the admin password file referenced by remote.passwordFile
//   - the desired fleet file referenced by fleet.desiredStateFile
//
// config.yaml is decoded with gopkg.in/yaml.v3 on top of GetDefaultConfig, so
// a file only needs the values it changes. Durations accept Go duration
// strings ("90s", "5m") or integer seconds.
//
//	remote:
//	  url: http://jenkins:8080
//	  username: admin
//	  passwordFile: admin-password
//	plugins:
//	  allowlist: [git, workflow-aggregator]
//	  downloadWait:
//	    timeout: 5m
//	    interval: 5s
//	fleet:
//	  distributionAddress: http://jenkins:8080
//	  desiredStateFile: fleet.yaml
//
// The fleet file may be YAML or JSON and is decoded with sigs.k8s.io/yaml:
//
//	agent-unit/0:
//	  - name: agent-0
//	    executors: "2"
//	    labels: "x86_64 linux"
//
// Loading and validation failures are returned as ConfigurationError values
// carrying the file, the kind of failure and suggestions for the operator.
package config
