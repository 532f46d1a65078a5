package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanscan/internal/cache"
)

// Resource URIs served by the server.
const (
	ErrorsResourceURI = "amanscan://errors"
	CacheResourceURI  = "amanscan://cache"
)

// CacheOutput describes the record store.
type CacheOutput struct {
	Enabled bool         `json:"enabled"`
	Dir     string       `json:"dir,omitempty"`
	Records []cache.Info `json:"records"`
}

// registerResources registers the issue log and the cache inventory.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "errors",
			URI:         ErrorsResourceURI,
			Description: "Issues recorded by the latest scan and the updates since",
			MIMEType:    "application/json",
		},
		s.jsonResource(ErrorsResourceURI),
	)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "cache",
			URI:         CacheResourceURI,
			Description: "Cached scan records",
			MIMEType:    "application/json",
		},
		s.jsonResource(CacheResourceURI),
	)
}

// cacheInventory lists the records of the engine's store.
func (s *Server) cacheInventory() (any, error) {
	store := s.engine.Store()
	if store == nil {
		return &CacheOutput{Records: []cache.Info{}}, nil
	}
	infos, err := store.List()
	if err != nil {
		return nil, err
	}
	if infos == nil {
		infos = []cache.Info{}
	}
	return &CacheOutput{Enabled: true, Dir: store.Dir(), Records: infos}, nil
}

func (s *Server) jsonResource(uri string) mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		text, err := s.ReadResource(uri)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     text,
				},
			},
		}, nil
	}
}

// ReadResource returns the JSON body of a resource by URI.
func (s *Server) ReadResource(uri string) (string, error) {
	var (
		v   any
		err error
	)
	switch uri {
	case ErrorsResourceURI:
		v = s.handleErrorSummary()
	case CacheResourceURI:
		v, err = s.cacheInventory()
	default:
		return "", &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource '" + uri + "' not found."}
	}
	if err != nil {
		return "", MapError(err)
	}
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", MapError(err)
	}
	return string(content), nil
}
