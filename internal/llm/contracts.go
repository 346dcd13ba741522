// Package llm holds the AI-provider contract plus the classification and
// extraction stages built on it.
package llm

import (
	"context"
	"encoding/base64"
)

// PageImage is one page payload for a vision call, ordered by page index.
type PageImage struct {
	Data      []byte
	MediaType string // "image/jpeg" | "image/png"
}

// DataURL renders the image as a base64 data URL for providers that want one.
func (p PageImage) DataURL() string {
	return "data:" + p.MediaType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}

// Request is one logical completion call: instruction contract plus an
// ordered set of page images.
type Request struct {
	System    string
	Prompt    string
	Pages     []PageImage
	MaxTokens int
}

// Response is a provider's successful reply.
type Response struct {
	Text      string
	Model     string
	TokensIn  int
	TokensOut int
}

// Provider is the interface the classifier and extractor depend on. Failures
// are returned as *common.ProviderError carrying the provider's declared
// error category.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}
