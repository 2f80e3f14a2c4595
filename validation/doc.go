// Package validation checks configuration, HTTP request values and bound
// pipeline outputs.
//
// Structs are validated through their `validate` tags:
//
//	type RuntimeConfig struct {
//	    MaxParallel int `validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
// Loose values such as URL parameters go through a Validator:
//
//	err := validation.Name("name", c.Param("name"))
package validation
