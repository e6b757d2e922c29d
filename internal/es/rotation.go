package es

import (
	"context"
	"fmt"
	"net/http"
)

// RotationSource resolves which physical index currently receives writes
// for a logical name. The contract requires exactly one write destination
// to exist; zero or several is a configuration error, not a transient
// condition.
type RotationSource interface {
	ResolveWriteTarget(ctx context.Context) (string, error)
}

// AliasSource resolves the write index of a rollover alias.
type AliasSource struct {
	client *Client
	alias  string
}

// NewAliasSource creates a rotation source backed by an alias.
func NewAliasSource(c *Client, alias string) *AliasSource {
	return &AliasSource{client: c, alias: alias}
}

type aliasEntry struct {
	Aliases map[string]aliasMeta `json:"aliases"`
}

type aliasMeta struct {
	IsWriteIndex bool `json:"is_write_index"`
}

// ResolveWriteTarget returns the single index flagged is_write_index.
func (s *AliasSource) ResolveWriteTarget(ctx context.Context) (string, error) {
	var resp map[string]aliasEntry
	if err := s.client.Do(ctx, http.MethodGet, "/_alias/"+s.alias, nil, &resp); err != nil {
		return "", err
	}

	var targets []string
	for index, entry := range resp {
		if entry.Aliases[s.alias].IsWriteIndex {
			targets = append(targets, index)
		}
	}
	if len(targets) != 1 {
		return "", fmt.Errorf("alias %q has %d write indices, want exactly 1", s.alias, len(targets))
	}
	return targets[0], nil
}

// DataStreamSource resolves the current backing index of a data stream.
type DataStreamSource struct {
	client *Client
	name   string
}

// NewDataStreamSource creates a rotation source backed by a data stream.
func NewDataStreamSource(c *Client, name string) *DataStreamSource {
	return &DataStreamSource{client: c, name: name}
}

type dataStreamResponse struct {
	DataStreams []struct {
		Name    string `json:"name"`
		Indices []struct {
			IndexName string `json:"index_name"`
		} `json:"indices"`
	} `json:"data_streams"`
}

// ResolveWriteTarget returns the last backing index, which is the write
// index by the backend's contract.
func (s *DataStreamSource) ResolveWriteTarget(ctx context.Context) (string, error) {
	var resp dataStreamResponse
	if err := s.client.Do(ctx, http.MethodGet, "/_data_stream/"+s.name, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.DataStreams) == 0 {
		return "", fmt.Errorf("data stream %q not found in response", s.name)
	}
	indices := resp.DataStreams[0].Indices
	if len(indices) == 0 {
		return "", fmt.Errorf("data stream %q has no backing indices", s.name)
	}
	return indices[len(indices)-1].IndexName, nil
}
