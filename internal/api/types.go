package api

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// Source is a document reference returned by the backend. Similarity
// is a score in [0,1]; anything outside that range fails validation.
type Source struct {
	Title      string  `json:"title"`
	SourceURL  string  `json:"source_url"`
	Similarity float64 `json:"similarity"`
}

// ChatResponse is the response body for POST /chat.
type ChatResponse struct {
	Answer          string   `json:"answer"`
	Sources         []Source `json:"sources,omitempty"`
	Confidence      *float64 `json:"confidence,omitempty"`
	SearchQueries   []string `json:"search_queries,omitempty"`
	RetrievalMethod string   `json:"retrieval_method,omitempty"`
}

// SearchResponse is the response body for GET /search.
type SearchResponse struct {
	Documents []Source `json:"documents"`
}

// HealthResponse is the response body for the health endpoints.
// Features is absent on backends that only confirm basic liveness.
type HealthResponse struct {
	Features map[string]string `json:"features,omitempty"`
}

// FeatureEnabled is the wire value for an active feature flag.
const FeatureEnabled = "enabled"

// errorDetail is the structured error body some backends attach to
// non-success statuses. Absent fields leave the raw body as the detail.
type errorDetail struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}
