// Package provision creates the backend artifacts the bench runs against:
// a quick lifecycle policy, index/component templates, and either the
// first write index behind an alias or a data stream.
package provision

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/bft-labs/rollbench/internal/es"
)

// Spec names everything the provisioner creates.
type Spec struct {
	Alias        string
	IndexPrefix  string
	FirstIndex   string
	PolicyName   string
	TemplateName string
	DataStream   string

	PrimaryShards       int
	Replicas            int
	MaxPrimaryShardSize string
	RolloverMaxDocs     int
	WarmAge             string
	ColdAge             string
	DeleteAge           string
	RefreshInterval     string
}

// SettingsTemplate returns the component template name carrying settings
// in data-stream mode.
func (s Spec) SettingsTemplate() string { return s.DataStream + "@settings" }

// MappingsTemplate returns the component template name carrying mappings
// in data-stream mode.
func (s Spec) MappingsTemplate() string { return s.DataStream + "@mappings" }

// benchMappings is the document shape every variant installs: a date
// timestamp, keyword service/level fields, and a binary message field
// that is stored but not indexed.
func benchMappings() map[string]any {
	return map[string]any{
		"properties": map[string]any{
			"@timestamp":   map[string]any{"type": "date"},
			"service.name": map[string]any{"type": "keyword"},
			"log.level":    map[string]any{"type": "keyword"},
			"message":      map[string]any{"type": "binary"},
		},
		"dynamic_templates": []any{
			map[string]any{
				"strings_as_keywords": map[string]any{
					"match_mapping_type": "string",
					"mapping":            map[string]any{"type": "keyword", "ignore_above": 256},
				},
			},
		},
	}
}

// EnsureAlias provisions the alias-mode environment: quick ILM policy,
// rollover template, and the first write index with the alias attached.
func EnsureAlias(ctx context.Context, c *es.Client, s Spec, log zerolog.Logger) error {
	log.Info().Str("policy", s.PolicyName).Msg("creating quick lifecycle policy")
	if err := putAliasPolicy(ctx, c, s); err != nil {
		return fmt.Errorf("put lifecycle policy: %w", err)
	}

	log.Info().Str("template", s.TemplateName).Msg("ensuring rollover index template")
	if err := ensureRolloverTemplate(ctx, c, s); err != nil {
		return fmt.Errorf("ensure index template: %w", err)
	}

	log.Info().Str("index", s.FirstIndex).Str("alias", s.Alias).Msg("creating first write index and alias")
	if err := createWriteIndexAndAlias(ctx, c, s, log); err != nil {
		return fmt.Errorf("create write index: %w", err)
	}
	return nil
}

// putAliasPolicy installs the demo-speed lifecycle: rollover by shard size
// or doc count in hot, quick warm/cold transitions, delayed delete.
func putAliasPolicy(ctx context.Context, c *es.Client, s Spec) error {
	body := map[string]any{
		"policy": map[string]any{
			"phases": map[string]any{
				"hot": map[string]any{
					"actions": map[string]any{
						"set_priority": map[string]any{"priority": 100},
						"rollover": map[string]any{
							"max_primary_shard_size": s.MaxPrimaryShardSize,
							"max_docs":               s.RolloverMaxDocs,
						},
					},
				},
				"warm": map[string]any{
					"min_age": s.WarmAge,
					"actions": map[string]any{
						"set_priority": map[string]any{"priority": 50},
						"forcemerge":   map[string]any{"max_num_segments": 1},
					},
				},
				"cold": map[string]any{
					"min_age": s.ColdAge,
					"actions": map[string]any{
						"set_priority": map[string]any{"priority": 0},
					},
				},
				"delete": map[string]any{
					"min_age": s.DeleteAge,
					"actions": map[string]any{"delete": map[string]any{}},
				},
			},
		},
	}
	return c.Do(ctx, http.MethodPut, "/_ilm/policy/"+s.PolicyName, body, nil)
}

// ensureRolloverTemplate installs the index template so rolled-over
// indices inherit shards, replicas, and lifecycle settings.
func ensureRolloverTemplate(ctx context.Context, c *es.Client, s Spec) error {
	body := map[string]any{
		"index_patterns": []string{s.IndexPrefix + "*"},
		"priority":       500,
		"template": map[string]any{
			"settings": map[string]any{
				"index.number_of_shards":         s.PrimaryShards,
				"index.number_of_replicas":       s.Replicas,
				"index.lifecycle.name":           s.PolicyName,
				"index.lifecycle.rollover_alias": s.Alias,
				"index.refresh_interval":         s.RefreshInterval,
			},
			"mappings": benchMappings(),
		},
	}
	return c.Do(ctx, http.MethodPut, "/_index_template/"+s.TemplateName, body, nil)
}

func createWriteIndexAndAlias(ctx context.Context, c *es.Client, s Spec, log zerolog.Logger) error {
	exists, err := c.Exists(ctx, "/"+s.FirstIndex)
	if err != nil {
		return err
	}
	if exists {
		log.Info().Str("index", s.FirstIndex).Msg("index already exists, skipping create")
		return nil
	}

	aliasExists, err := c.Exists(ctx, "/_alias/"+s.Alias)
	if err != nil {
		return err
	}
	if aliasExists {
		// The alias must not already point writes somewhere else: that
		// would corrupt the observed rotation count.
		src := es.NewAliasSource(c, s.Alias)
		if current, err := src.ResolveWriteTarget(ctx); err == nil {
			return fmt.Errorf("alias %q already has write index %q; remove it or change the alias", s.Alias, current)
		}
	}

	body := map[string]any{
		"settings": map[string]any{
			"index.number_of_shards":         s.PrimaryShards,
			"index.number_of_replicas":       s.Replicas,
			"index.lifecycle.name":           s.PolicyName,
			"index.lifecycle.rollover_alias": s.Alias,
			"index.refresh_interval":         s.RefreshInterval,
		},
		"mappings": benchMappings(),
		"aliases": map[string]any{
			s.Alias: map[string]any{"is_write_index": true},
		},
	}
	return c.Do(ctx, http.MethodPut, "/"+s.FirstIndex, body, nil)
}

// EnsureDataStream provisions the data-stream-mode environment: lifecycle
// policy, component templates, the composing index template, and the
// stream itself.
func EnsureDataStream(ctx context.Context, c *es.Client, s Spec, log zerolog.Logger) error {
	log.Info().Str("policy", s.PolicyName).Msg("creating lifecycle policy")
	if err := putStreamPolicy(ctx, c, s); err != nil {
		return fmt.Errorf("put lifecycle policy: %w", err)
	}

	log.Info().Str("template", s.TemplateName).Msg("ensuring component and index templates")
	if err := putStreamTemplates(ctx, c, s); err != nil {
		return fmt.Errorf("ensure templates: %w", err)
	}

	log.Info().Str("data_stream", s.DataStream).Msg("ensuring data stream")
	exists, err := c.Exists(ctx, "/_data_stream/"+s.DataStream)
	if err != nil {
		return err
	}
	if !exists {
		if err := c.Do(ctx, http.MethodPut, "/_data_stream/"+s.DataStream, nil, nil); err != nil {
			return fmt.Errorf("create data stream: %w", err)
		}
	}
	return nil
}

// putStreamPolicy installs the simpler stream lifecycle: rollover by shard
// size only, no phase priorities.
func putStreamPolicy(ctx context.Context, c *es.Client, s Spec) error {
	body := map[string]any{
		"policy": map[string]any{
			"phases": map[string]any{
				"hot": map[string]any{
					"actions": map[string]any{
						"rollover": map[string]any{
							"max_primary_shard_size": s.MaxPrimaryShardSize,
							"max_docs":               s.RolloverMaxDocs,
						},
					},
				},
				"warm": map[string]any{
					"min_age": s.WarmAge,
					"actions": map[string]any{"forcemerge": map[string]any{"max_num_segments": 1}},
				},
				"cold": map[string]any{
					"min_age": s.ColdAge,
					"actions": map[string]any{},
				},
				"delete": map[string]any{
					"min_age": s.DeleteAge,
					"actions": map[string]any{"delete": map[string]any{}},
				},
			},
		},
	}
	return c.Do(ctx, http.MethodPut, "/_ilm/policy/"+s.PolicyName, body, nil)
}

func putStreamTemplates(ctx context.Context, c *es.Client, s Spec) error {
	settings := map[string]any{
		"template": map[string]any{
			"settings": map[string]any{
				"index.number_of_shards":   s.PrimaryShards,
				"index.number_of_replicas": s.Replicas,
				"index.lifecycle.name":     s.PolicyName,
				"index.refresh_interval":   s.RefreshInterval,
			},
		},
		"version": 1,
	}
	if err := c.Do(ctx, http.MethodPut, "/_component_template/"+s.SettingsTemplate(), settings, nil); err != nil {
		return err
	}

	mappings := map[string]any{
		"template": map[string]any{"mappings": benchMappings()},
		"version":  1,
	}
	if err := c.Do(ctx, http.MethodPut, "/_component_template/"+s.MappingsTemplate(), mappings, nil); err != nil {
		return err
	}

	template := map[string]any{
		"index_patterns": []string{s.DataStream + "*"},
		"data_stream":    map[string]any{},
		"priority":       500,
		"composed_of":    []string{s.SettingsTemplate(), s.MappingsTemplate()},
	}
	return c.Do(ctx, http.MethodPut, "/_index_template/"+s.TemplateName, template, nil)
}
