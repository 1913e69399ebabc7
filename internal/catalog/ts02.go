package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/cdabench/internal/opensearch"
	"github.com/ppiankov/cdabench/internal/scenario"
)

// OnlineDownloadID identifies the single remote online download scenario.
const OnlineDownloadID = "TS02"

const maxDiscovery = 200

// OnlineDownload probes the first bytes of items' enclosures.
type OnlineDownload struct {
	env scenario.Env
}

// NewOnlineDownload binds the scenario to env.
func NewOnlineDownload(env scenario.Env) *OnlineDownload {
	return &OnlineDownload{env: prepare(env)}
}

func (s *OnlineDownload) ID() string    { return OnlineDownloadID }
func (s *OnlineDownload) Title() string { return "Single Remote Online Download" }

// CreateTestCases discovers up to LoadFactor downloadable items and returns
// one case per item, or a single skipped case when none is found.
func (s *OnlineDownload) CreateTestCases(ctx context.Context) ([]scenario.TestCase, error) {
	res, err := s.env.Client.Search(ctx, opensearch.Query{Count: min(s.env.LoadFactor*2, maxDiscovery)})
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	var items []opensearch.Item
	for _, it := range res.Items {
		if it.Enclosure == "" {
			continue
		}
		items = append(items, it)
		if len(items) == s.env.LoadFactor {
			break
		}
	}
	s.env.Logger.Info("downloadable items discovered",
		zap.Int("returned", len(res.Items)), zap.Int("selected", len(items)))

	if len(items) == 0 {
		return []scenario.TestCase{probe{
			id:    "201",
			title: "Online Download",
			run: func(context.Context) scenario.Outcome {
				return scenario.Skip("no downloadable item discovered")
			},
		}}, nil
	}

	cases := make([]scenario.TestCase, 0, len(items))
	for i, it := range items {
		cases = append(cases, probe{
			id:    fmt.Sprintf("201.%d", i+1),
			title: "Online Download " + it.ID,
			run:   func(ctx context.Context) scenario.Outcome { return s.download(ctx, it) },
		})
	}
	return cases, nil
}

func (s *OnlineDownload) download(ctx context.Context, it opensearch.Item) scenario.Outcome {
	th := s.env.Thresholds
	dl, err := s.env.Client.Fetch(ctx, it.Enclosure, th.DownloadProbeBytes)
	if err != nil {
		return scenario.Error(0, err)
	}

	out := fmt.Sprintf("%s: status=%d ttfb=%s bytes=%d elapsed=%s\n", it.Enclosure, dl.Status, dl.TTFB, dl.Bytes, dl.Elapsed)
	switch {
	case dl.Bytes == 0:
		return scenario.Fail(dl.Elapsed, "enclosure returned no data", out)
	case dl.TTFB > th.DownloadTTFB:
		return scenario.Fail(dl.Elapsed, fmt.Sprintf("time to first byte %s exceeds %s", dl.TTFB, th.DownloadTTFB), out)
	}
	return scenario.Pass(dl.Elapsed, out)
}
