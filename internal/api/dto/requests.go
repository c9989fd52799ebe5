package dto

// LocationRequest carries an address with coordinates. The coordinate tags
// are range checks, not required: zero is a legal latitude and longitude.
type LocationRequest struct {
	Address   string  `json:"address" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

// EstimateFareRequest represents a fare quote request
type EstimateFareRequest struct {
	Pickup      LocationRequest `json:"pickup" binding:"required"`
	Destination LocationRequest `json:"destination" binding:"required"`
	Region      string          `json:"region"`
}

// CreatePaymentRequest represents a payment request
type CreatePaymentRequest struct {
	RideID string  `json:"ride_id" binding:"required,uuid"`
	Method string  `json:"method" binding:"required,oneof=card wallet cash"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// TokenRequest issues a development access token.
type TokenRequest struct {
	Subject string `json:"subject" binding:"required"`
	Role    string `json:"role" binding:"required,oneof=driver customer dispatcher"`
}

// Error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
