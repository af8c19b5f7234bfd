package model

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Fixture values for the login contract.
const (
	DefaultUsername = "user1"
	DefaultPassword = "password1"
	WrongPassword   = "wrongpassword"

	MessageLoginSuccessful    = "Login successful"
	MessageInvalidCredentials = "Invalid credentials"

	ScenarioLoginSuccess = "login_success"
	ScenarioLoginFailure = "login_failure"
)

// Credentials is the JSON body sent to the login endpoint.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DefaultCredentials returns the known-good fixture pair.
func DefaultCredentials() Credentials {
	return Credentials{Username: DefaultUsername, Password: DefaultPassword}
}

// LoginResponse is what came back from one login attempt.
// Message is nil when the body had no "message" string field.
type LoginResponse struct {
	StatusCode int     `json:"-"`
	Message    *string `json:"message"`
}

// MessageOrEmpty returns the message or "" when it was absent.
func (r *LoginResponse) MessageOrEmpty() string {
	if r == nil || r.Message == nil {
		return ""
	}
	return *r.Message
}

// Scenario is one fixed request/expectation pair.
type Scenario struct {
	Name            string      `json:"name"`
	Credentials     Credentials `json:"-"`
	ExpectedStatus  int         `json:"expectedStatus"`
	ExpectedMessage string      `json:"expectedMessage"`
}

// SuccessfulLogin expects valid to be accepted.
func SuccessfulLogin(valid Credentials) Scenario {
	return Scenario{
		Name:            ScenarioLoginSuccess,
		Credentials:     valid,
		ExpectedStatus:  http.StatusOK,
		ExpectedMessage: MessageLoginSuccessful,
	}
}

// FailedLogin keeps the valid username and sends the wrong password.
func FailedLogin(valid Credentials) Scenario {
	return Scenario{
		Name:            ScenarioLoginFailure,
		Credentials:     Credentials{Username: valid.Username, Password: WrongPassword},
		ExpectedStatus:  http.StatusUnauthorized,
		ExpectedMessage: MessageInvalidCredentials,
	}
}

// Scenarios returns both contract scenarios built around valid.
func Scenarios(valid Credentials) []Scenario {
	return []Scenario{SuccessfulLogin(valid), FailedLogin(valid)}
}

// Failure kinds recorded on a Result.
const (
	FailureNone       = ""
	FailureAssertion  = "assertion"
	FailureConnection = "connection"
)

// Result is the outcome of verifying one scenario.
type Result struct {
	RunID      uuid.UUID     `json:"runId"`
	Scenario   string        `json:"scenario"`
	BaseURL    string        `json:"baseUrl"`
	StatusCode int           `json:"statusCode,omitempty"`
	Message    string        `json:"message,omitempty"`
	Passed     bool          `json:"passed"`
	Failure    string        `json:"failure,omitempty"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latencyNs"`
	CheckedAt  time.Time     `json:"checkedAt"`
}

// AllPassed reports whether every result passed. An empty slice counts as passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
