package jwt

type Role int

type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Identity is the subject a token is minted for.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
