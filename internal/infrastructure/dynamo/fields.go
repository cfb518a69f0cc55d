package dynamo

// DynamoDB attribute names used in keys, conditions and update expressions.
const (
	fieldEmail     = "email"
	fieldUserID    = "user_id"
	fieldCode      = "code"
	fieldPurpose   = "purpose"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
	fieldUpdatedAt = "updated_at"

	indexUserID = "user_id-index"
)
