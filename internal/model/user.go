package model

// User is the authenticated principal
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	IsActive bool   `json:"is_active"`
}

// TokenResponse is returned by the token endpoint
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ErrorBody is the error payload returned by the API
type ErrorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

// Message returns whichever of detail or error is set.
func (e ErrorBody) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error
}
