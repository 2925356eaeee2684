package model

import "github.com/golang-jwt/jwt/v5"

// GuestClaims is the JWT payload for an optional guest identity token
type GuestClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// GuestTokenResponse is returned when a guest token is issued
type GuestTokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}
