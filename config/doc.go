// Package config loads opkit configuration.
//
// Values come from a YAML file, an optional .env file and environment
// variables, in that order of increasing precedence. Environment variables
// use the OPKIT_ prefix with underscore-separated paths (OPKIT_LLM_API_KEY
// sets llm.api_key).
//
//	cfg, err := config.Load("opkit", config.WithConfigFile("opkit.yml"))
package config
