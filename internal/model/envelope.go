package model

// Envelope wraps every response of the remote EMS API.  Success is optional;
// when the server sends it as false the call failed even on a 2xx status.
type Envelope[T any] struct {
	TraceID   string `json:"traceId"`
	Result    T      `json:"result"`
	Message   string `json:"message"`
	TimeStamp string `json:"timeStamp"`
	Success   *bool  `json:"success,omitempty"`
}

// Failed reports whether the envelope carries an explicit failure flag.
func (e Envelope[T]) Failed() bool { return e.Success != nil && !*e.Success }

// SignInRequest is the body of POST /api/v1/Auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResult is the result of a successful sign-in.
type SignInResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ChangePasswordRequest is the body of POST /api/v1/Auth/change-password.
type ChangePasswordRequest struct {
	Email              string `json:"email"`
	OldPassword        string `json:"oldPassword"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}
