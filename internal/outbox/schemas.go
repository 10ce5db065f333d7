package outbox

const stepsRecordedSchema = `{
  "type": "object",
  "title": "StepsRecorded",
  "properties": {
    "record_id": {"type": "string"},
    "user_id": {"type": "string"},
    "team_id": {"type": "string"},
    "steps": {"type": "integer"},
    "date": {"type": "string"},
    "action": {"type": "string"},
    "confidence": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["record_id", "user_id", "team_id", "steps", "date", "action", "occurred_at"],
  "additionalProperties": false
}`

const teamMemberJoinedSchema = `{
  "type": "object",
  "title": "TeamMemberJoined",
  "properties": {
    "team_code": {"type": "string"},
    "user_id": {"type": "string"},
    "role": {"type": "string"},
    "joined_at": {"type": "string", "format": "date-time"}
  },
  "required": ["team_code", "user_id", "role", "joined_at"],
  "additionalProperties": false
}`
