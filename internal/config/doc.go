// Package config provides configuration management for tokenward.
//
// Configuration is loaded from a single directory. The default
// configuration directory is ~/.config/tokenward, but users can specify
// a custom directory using the --config-path flag in commands.
//
// # Configuration File
//
// The directory contains a single config.yaml. A missing file is not an
// error: loading starts from GetDefaultConfig and unmarshals the file
// over it, so a partial file only overrides what it names.
//
// # Configuration Structure
//
//	issuer: "https://auth.example.com"  # authorization server base URL
//	client_id: "tokenward-cli"          # OAuth client identifier
//	client_secret: ""                   # confidential clients only
//	scopes:
//	  - openid
//	  - profile
//	endpoints:                          # optional, pins endpoints explicitly
//	  authorization: "https://auth.example.com/authorize"
//	  token: "https://auth.example.com/oauth/token"
//	  revocation: "https://auth.example.com/oauth/revoke"
//	callback:
//	  port: 8080                        # loopback listener port (default: 8080)
//	  path: "/callback"                 # redirect path (default: /callback)
//	token_dir: ""                       # token storage override
//	log_level: "info"                   # debug, info, warn, error
//
// Endpoints left empty are resolved from the issuer through RFC 8414
// metadata discovery at login time; explicit values always win over
// discovered ones.
//
// # Usage Example
//
//	cfg, err := config.LoadConfig(config.GetDefaultConfigPathOrPanic())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
