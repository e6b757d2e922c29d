// Package report summarizes what a run left behind: the alias mapping,
// the index family with store sizes, and each index's lifecycle state.
// Reporting is best-effort; failures become notes.
package report

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bft-labs/rollbench/internal/es"
	"github.com/bft-labs/rollbench/internal/provision"
)

type statsResponse struct {
	Indices map[string]struct {
		Primaries storeSection `json:"primaries"`
		Total     storeSection `json:"total"`
	} `json:"indices"`
}

type storeSection struct {
	Store struct {
		SizeInBytes int64 `json:"size_in_bytes"`
	} `json:"store"`
	Docs struct {
		Count int64 `json:"count"`
	} `json:"docs"`
}

type explainResponse struct {
	Indices map[string]struct {
		Phase  string `json:"phase"`
		Action string `json:"action"`
		Step   string `json:"step"`
	} `json:"indices"`
}

// Alias reports on the alias-mode index family.
func Alias(ctx context.Context, c *es.Client, s provision.Spec, log zerolog.Logger) {
	if text, err := c.Text(ctx, "/_cat/aliases/"+s.Alias+"?v"); err != nil {
		log.Warn().Err(err).Msg("alias mapping note")
	} else {
		log.Info().Str("mapping", strings.TrimSpace(text)).Msg("alias mapping")
	}

	indices, err := indicesWithPrefix(ctx, c, s.IndexPrefix)
	if err != nil {
		log.Warn().Err(err).Msg("index list note")
		return
	}
	if len(indices) == 0 {
		log.Info().Str("prefix", s.IndexPrefix).Msg("no indices found")
		return
	}
	describe(ctx, c, indices, log)
}

// DataStream reports on the stream's backing indices.
func DataStream(ctx context.Context, c *es.Client, s provision.Spec, log zerolog.Logger) {
	var resp struct {
		DataStreams []struct {
			Indices []struct {
				IndexName string `json:"index_name"`
			} `json:"indices"`
		} `json:"data_streams"`
	}
	if err := c.Do(ctx, http.MethodGet, "/_data_stream/"+s.DataStream, nil, &resp); err != nil {
		log.Warn().Err(err).Msg("data stream note")
		return
	}
	if len(resp.DataStreams) == 0 {
		log.Info().Str("data_stream", s.DataStream).Msg("data stream not found")
		return
	}
	var indices []string
	for _, idx := range resp.DataStreams[0].Indices {
		indices = append(indices, idx.IndexName)
	}
	describe(ctx, c, indices, log)
}

func describe(ctx context.Context, c *es.Client, indices []string, log zerolog.Logger) {
	joined := strings.Join(indices, ",")

	var stats statsResponse
	if err := c.Do(ctx, http.MethodGet, "/"+joined+"/_stats/store,docs", nil, &stats); err != nil {
		log.Warn().Err(err).Msg("stats note")
	}

	var explain explainResponse
	if err := c.Do(ctx, http.MethodGet, "/"+joined+"/_ilm/explain", nil, &explain); err != nil {
		log.Warn().Err(err).Msg("lifecycle explain note")
	}

	for _, name := range indices {
		ev := log.Info().Str("index", name)
		if st, ok := stats.Indices[name]; ok {
			ev = ev.
				Int64("primary_bytes", st.Primaries.Store.SizeInBytes).
				Int64("total_bytes", st.Total.Store.SizeInBytes).
				Int64("docs", st.Primaries.Docs.Count)
		}
		if ex, ok := explain.Indices[name]; ok {
			ev = ev.
				Str("phase", ex.Phase).
				Str("action", ex.Action).
				Str("step", ex.Step)
		}
		ev.Msg("index state")
	}
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
