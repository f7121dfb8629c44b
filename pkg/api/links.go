package api

// LinkRequest carries the provider authorization artifact to the backend.
type LinkRequest struct {
	AuthCode     string `json:"auth_code,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Link представляет привязку стороннего провайдера
type Link struct {
	Provider    string         `json:"provider"`
	PartyUserID string         `json:"party_user_id"`
	LinkedAt    int64          `json:"linked_at"`
	Detail      map[string]any `json:"detail,omitempty"`
}

// LinkResponse is returned by link and unlink.
type LinkResponse struct {
	Link Link `json:"link"`
}

// ListLinksResponse is the authoritative snapshot of the player's links.
type ListLinksResponse struct {
	Links []Link `json:"links"`
}

// RevocationRequest is sent by a provider (or its relay) when it revokes access.
type RevocationRequest struct {
	PartyUserID string `json:"party_user_id"`
}
