package tokens

import "github.com/golang-jwt/jwt/v5"

// AccessClaims carry enough profile data to serve a request without a
// database round trip. Subject is the user id.
type AccessClaims struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
	jwt.RegisteredClaims
}

// RefreshClaims carry only the user id; everything else is looked up and
// cross-checked against the stored token at refresh time.
type RefreshClaims struct {
	jwt.RegisteredClaims
}
