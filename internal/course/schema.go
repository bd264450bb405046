package course

// documentSchema describes a course document as read by Loader.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "slug", "name"],
  "properties": {
    "id": {"type": "integer", "minimum": 1},
    "slug": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "categories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": "integer", "minimum": 1},
          "name": {"type": "string"}
        }
      }
    },
    "modules": {
      "type": "array",
      "items": {"$ref": "#/definitions/module"}
    }
  },
  "definitions": {
    "status": {
      "enum": ["draft", "ready", "unlisted", "hidden", "maintenance"]
    },
    "module": {
      "type": "object",
      "required": ["id", "url", "name", "opening_time", "closing_time"],
      "properties": {
        "id": {"type": "integer", "minimum": 1},
        "url": {"type": "string", "minLength": 1},
        "name": {"type": "string"},
        "status": {"$ref": "#/definitions/status"},
        "opening_time": {"type": "string"},
        "closing_time": {"type": "string"},
        "points_to_pass": {"type": "integer", "minimum": 0},
        "items": {
          "type": "array",
          "items": {"$ref": "#/definitions/item"}
        }
      }
    },
    "item": {
      "type": "object",
      "required": ["id", "url", "name"],
      "properties": {
        "id": {"type": "integer", "minimum": 1},
        "url": {"type": "string", "minLength": 1, "pattern": "^[^/]+$"},
        "name": {"type": "string"},
        "status": {"$ref": "#/definitions/status"},
        "empty": {"type": "boolean"},
        "exercise": {
          "type": "object",
          "properties": {
            "category": {"type": "integer", "minimum": 0},
            "difficulty": {"type": "string"},
            "max_points": {"type": "integer", "minimum": 0},
            "points_to_pass": {"type": "integer", "minimum": 0},
            "max_submissions": {"type": "integer", "minimum": 0}
          }
        },
        "children": {
          "type": "array",
          "items": {"$ref": "#/definitions/item"}
        }
      }
    }
  }
}`
