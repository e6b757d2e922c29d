// Package cleanup tears down the backend artifacts a bench run created.
// Individual failures are logged as notes; teardown keeps going.
package cleanup

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bft-labs/rollbench/internal/es"
	"github.com/bft-labs/rollbench/internal/provision"
)

// Alias removes the alias from every holder and deletes all indices
// carrying the bench prefix.
func Alias(ctx context.Context, c *es.Client, s provision.Spec, log zerolog.Logger) error {
	var holders map[string]any
	err := c.Do(ctx, http.MethodGet, "/_alias/"+s.Alias, nil, &holders)
	switch {
	case es.IsNotFound(err):
		log.Info().Str("alias", s.Alias).Msg("alias not present")
	case err != nil:
		log.Warn().Err(err).Msg("alias lookup note")
	case len(holders) > 0:
		actions := make([]any, 0, len(holders))
		for index := range holders {
			actions = append(actions, map[string]any{
				"remove": map[string]any{"index": index, "alias": s.Alias},
			})
		}
		body := map[string]any{"actions": actions}
		if err := c.Do(ctx, http.MethodPost, "/_aliases", body, nil); err != nil {
			log.Warn().Err(err).Msg("alias remove note")
		} else {
			log.Info().Str("alias", s.Alias).Int("indices", len(holders)).Msg("removed alias from indices")
		}
	}

	targets, err := indicesWithPrefix(ctx, c, s.IndexPrefix)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		log.Info().Str("prefix", s.IndexPrefix).Msg("no indices to delete")
		return nil
	}
	if err := c.Do(ctx, http.MethodDelete, "/"+strings.Join(targets, ","), nil, nil); err != nil {
		return err
	}
	log.Info().Strs("indices", targets).Msg("deleted indices")
	return nil
}

// DataStream deletes the stream (and with it the backing indices), then
// the index template, component templates, and lifecycle policy.
func DataStream(ctx context.Context, c *es.Client, s provision.Spec, log zerolog.Logger) error {
	exists, err := c.Exists(ctx, "/_data_stream/"+s.DataStream)
	if err != nil {
		log.Warn().Err(err).Msg("data stream lookup note")
	}
	if exists {
		if err := c.Do(ctx, http.MethodDelete, "/_data_stream/"+s.DataStream, nil, nil); err != nil {
			return err
		}
		log.Info().Str("data_stream", s.DataStream).Msg("deleted data stream and backing indices")
	} else {
		log.Info().Str("data_stream", s.DataStream).Msg("data stream not present")
	}

	if err := c.Do(ctx, http.MethodDelete, "/_index_template/"+s.TemplateName, nil, nil); err != nil {
		log.Warn().Err(err).Msg("index template delete note")
	} else {
		log.Info().Str("template", s.TemplateName).Msg("deleted index template")
	}

	for _, ct := range []string{s.SettingsTemplate(), s.MappingsTemplate()} {
		if err := c.Do(ctx, http.MethodDelete, "/_component_template/"+ct, nil, nil); err != nil {
			log.Warn().Err(err).Str("template", ct).Msg("component template delete note")
		} else {
			log.Info().Str("template", ct).Msg("deleted component template")
		}
	}

	// Only safe when the policy is not shared with other indices.
	if err := c.Do(ctx, http.MethodDelete, "/_ilm/policy/"+s.PolicyName, nil, nil); err != nil {
		log.Warn().Err(err).Msg("lifecycle policy delete note")
	} else {
		log.Info().Str("policy", s.PolicyName).Msg("deleted lifecycle policy")
	}
	return nil
}

func indicesWithPrefix(ctx context.Context, c *es.Client, prefix string) ([]string, error) {
	text, err := c.Text(ctx, "/_cat/indices?h=index&s=index")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasPrefix(line, prefix) {
			out = append(out, line)
		}
	}
	return out, nil
}
