package config

// schemaJSON constrains the shape of config.yaml (decoded to a
// map[string]any before validation, the same as JSON would be). Modeled
// after the teacher's tool_registry.go compileSchema pattern.
const schemaJSON = `{
  "type": "object",
  "required": ["edge", "forwarder"],
  "properties": {
    "edge": {
      "type": "object",
      "required": ["ae_title", "port", "data_root"],
      "properties": {
        "ae_title": {"type": "string", "minLength": 1},
        "port": {"type": "integer", "minimum": 0, "maximum": 65535},
        "data_root": {"type": "string", "minLength": 1},
        "log_path": {"type": "string"},
        "store_path": {"type": "string"},
        "allowed_calling_aets": {"type": "array", "items": {"type": "string"}}
      }
    },
    "forwarder": {
      "type": "object",
      "required": ["mode", "max_retries"],
      "properties": {
        "mode": {"type": "string", "enum": ["dummy", "archive", "workers", "gateway", "parallel"]},
        "max_retries": {"type": "integer", "minimum": 0},
        "backoff_base_seconds": {"type": "integer", "minimum": 0},
        "poll_interval_seconds": {"type": "integer", "minimum": 0},
        "archive": {"$ref": "#/$defs/endpoint"},
        "workers": {"type": "array", "items": {"$ref": "#/$defs/endpoint"}}
      }
    },
    "fault_injection": {
      "type": "object",
      "properties": {
        "reject_all": {"type": "boolean"},
        "disk_full": {"type": "boolean"},
        "io_delay_ms": {"type": "integer", "minimum": 0},
        "random_fail_rate": {"type": "number", "minimum": 0, "maximum": 1}
      }
    }
  },
  "$defs": {
    "endpoint": {
      "type": "object",
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "ae_title": {"type": "string"},
        "timeout_s": {"type": "integer", "minimum": 0}
      }
    }
  }
}`
