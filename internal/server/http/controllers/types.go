package controllers

// Common request/response types for HTTP controllers

// publishSqueakReq is the body of POST /v1/squeaks.
type publishSqueakReq struct {
	Content string `json:"content"`
	Author  struct {
		Name string `json:"name"`
	} `json:"author"`
}

// createStreamReq is the body of POST /v1/streams.
type createStreamReq struct {
	Name        string   `json:"name"`
	Subjects    []string `json:"subjects"`
	Description string   `json:"description,omitempty"`
}

// clearStreamReq is the optional body of POST /v1/streams/{name}/clear.
type clearStreamReq struct {
	BatchSize int `json:"batch_size"`
}

// clearProgress is one NDJSON line of a clear response.
type clearProgress struct {
	Batch int    `json:"batch,omitempty"`
	Total int    `json:"total"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}
