// Package config handles loading and validating the strip gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a .env file into the process environment
//   - Overriding with STRIPGATE_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The API key, operator password, provider client secret and JWT secret
//     should be set via environment variables or the .env file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
