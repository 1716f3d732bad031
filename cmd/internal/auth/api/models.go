package authapi

import "encoding/json"

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type recordUpsertRequest struct {
	TxID   string          `json:"txId"`
	TxData json.RawMessage `json:"txData"`
}

// userView is the public account shape. Credential and token material
// never appear here.
type userView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type sessionResponse struct {
	OK    bool     `json:"ok"`
	User  userView `json:"user"`
	Token string   `json:"token"`
}

type meResponse struct {
	OK   bool     `json:"ok"`
	User userView `json:"user"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// checkUsernameResponse deliberately has no envelope: the availability
// probe answers with a bare boolean and never errors.
type checkUsernameResponse struct {
	Available bool `json:"available"`
}

type recordListResponse struct {
	OK           bool             `json:"ok"`
	Transactions []map[string]any `json:"transactions"`
}
