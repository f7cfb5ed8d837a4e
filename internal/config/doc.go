// Package config loads oddbot's runtime configuration: built-in defaults,
// an optional YAML or JSON file, and environment overrides.
//
// Example:
//
//	cfg, err := config.Load(os.Getenv("ODDBOT_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	out, _ := config.Marshal(cfg) // YAML, as printed by `oddbot config print`
package config
