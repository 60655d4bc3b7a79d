package dto

type RegisterWebhookRequest struct {
	URL string `json:"url" binding:"required"`
	// Secret is optional; the server generates one when omitted.
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events" binding:"required"`
}
