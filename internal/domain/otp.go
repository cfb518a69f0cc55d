package domain

// Purpose tells what a one-time code was issued for. A code issued for one
// purpose never verifies for the other.
type Purpose string

const (
	PurposeLogin        Purpose = "login"
	PurposeRegistration Purpose = "registration"
)

// MaxCodeAttempts is the number of failed guesses a pending code survives.
// The miss that reaches it deletes the code.
const MaxCodeAttempts = 5

// OneTimeCode is the single pending code for an email.
// PK: email. ExpiresAt is a Unix timestamp used as DynamoDB TTL and as the
// hard expiry checked on consume.
type OneTimeCode struct {
	Email     string  `json:"email" dynamodbav:"email"`
	Code      string  `json:"-" dynamodbav:"code"`
	Purpose   Purpose `json:"purpose" dynamodbav:"purpose"`
	Attempts  int     `json:"attempts" dynamodbav:"attempts"`
	CreatedAt int64   `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt int64   `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix seconds)
}
