package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema constrains the raw document before strict decoding. It guards
// enum fields and numeric ranges; structural checks happen in Validate.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "gateway": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "bind": {"enum": ["loopback", "lan", "custom"]},
        "auth": {
          "type": "object",
          "properties": {
            "mode": {"enum": ["token", "password"]}
          }
        },
        "trustedProxies": {"type": "array", "items": {"type": "string"}}
      }
    },
    "agent": {
      "type": "object",
      "properties": {
        "maxHistoryMessages": {"type": "integer", "minimum": 1}
      }
    },
    "cron": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "schedule": {"type": "string"},
          "action": {"type": "string"},
          "enabled": {"type": "boolean"}
        },
        "required": ["name", "schedule"]
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"enum": ["silly", "trace", "debug", "info", "warn", "error", "fatal"]}
      }
    },
    "plugins": {"type": "array", "items": {"type": "string"}}
  }
}`

var compiledSchema = jsonschema.MustCompileString("haya-config.json", configSchema)

// validateSchema checks the raw config document against the embedded schema.
func validateSchema(raw map[string]any) error {
	// Round-trip through JSON so YAML-decoded values use JSON number types.
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config is not JSON-representable: %w", err)
	}
	var doc any
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return err
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}
