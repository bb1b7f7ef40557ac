// Package device summarizes the client device from its User-Agent for login audit records.
package device

import (
	"context"

	"github.com/mssola/useragent"

	"aidledger/pkg/requestcontext"
)

// Info is the parsed device description stored on login events.
type Info struct {
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	Mobile         bool   `json:"mobile"`
	Bot            bool   `json:"bot"`
}

// FromUserAgent parses a raw User-Agent header.
func FromUserAgent(raw string) Info {
	if raw == "" {
		return Info{}
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	return Info{
		Browser:        name,
		BrowserVersion: version,
		OS:             ua.OS(),
		Mobile:         ua.Mobile(),
		Bot:            ua.Bot(),
	}
}

// FromContext parses the User-Agent captured by the metadata middleware.
func FromContext(ctx context.Context) Info {
	return FromUserAgent(requestcontext.UserAgent(ctx))
}
