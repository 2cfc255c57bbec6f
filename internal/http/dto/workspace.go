package dto

type SetSecretRequest struct {
	Secret string `json:"secret"`
}
