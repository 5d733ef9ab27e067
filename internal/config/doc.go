// Package config loads runtime configuration.
//
// Configuration is read from xvm.yaml or xvm.json in the working
// directory, or from an explicit path, and overlaid with XVM_ prefixed
// environment variables where dots become underscores
// (XVM_SERVER_ADDR overrides server.addr).
//
// # Configuration File Structure
//
//	debug: false
//	log:
//	  level: info
//	  format: text
//	scheduler:
//	  flush_warn_threshold: 20000
//	server:
//	  addr: ":7070"
//	  ws_path: /ws
//	  metrics_path: /metrics
//	  allowed_origins: ["https://example.com"]
//	  trusted_proxies: ["10.0.0.0/8"]
//	  queue_size: 256
//	metrics:
//	  enabled: true
//	  namespace: xvm
//	bundles:
//	  - components/counter.yaml
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger := cfg.Logger(os.Stderr)
package config
