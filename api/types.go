package api

// ProviderInfo describes an admitted storage provider.
type ProviderInfo struct {
	Name     string   `json:"name"`
	Priority int      `json:"priority"`
	Schemes  []string `json:"schemes"`
}

// StatusResponse is the body of the health and drain endpoints.
type StatusResponse struct {
	Status string `json:"status"`
}
