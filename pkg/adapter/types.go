package adapter

// Usage captures normalized token usage.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CachedTokens int `json:"cached_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Source is an external reference a backend consulted while answering.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// Response is the outcome of one backend call. It is not modified after
// the coordinator has scored and priced it.
type Response struct {
	Content      string   `json:"content"`
	BackendID    string   `json:"backend_id"`
	Model        string   `json:"model"`
	Usage        Usage    `json:"usage"`
	CostUSD      float64  `json:"cost_usd"`
	LatencyMs    int64    `json:"latency_ms"`
	QualityScore float64  `json:"quality_score"`
	ErrorKind    Kind     `json:"error_kind,omitempty"`
	Sources      []Source `json:"sources,omitempty"`
}
