package opensearch

import (
	"encoding/json"
	"fmt"
	"time"
)

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type featureProperties struct {
	Identifier     string `json:"identifier"`
	Title          string `json:"title"`
	Published      string `json:"published"`
	Updated        string `json:"updated"`
	StartDate      string `json:"startDate"`
	CompletionDate string `json:"completionDate"`
	Links          []link `json:"links"`
}

type feature struct {
	ID         string            `json:"id"`
	Properties featureProperties `json:"properties"`
}

type featureCollection struct {
	TotalResults *int `json:"totalResults"`
	Properties   struct {
		TotalResults *int `json:"totalResults"`
	} `json:"properties"`
	Features []feature `json:"features"`
}

// decodeFeatureCollection parses a GeoJSON FeatureCollection response.
func decodeFeatureCollection(data []byte) (*Result, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	res := &Result{Items: make([]Item, 0, len(fc.Features))}
	for i, f := range fc.Features {
		item, err := f.item()
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %v", ErrMalformed, i, err)
		}
		res.Items = append(res.Items, item)
	}

	switch {
	case fc.TotalResults != nil:
		res.TotalResults = *fc.TotalResults
	case fc.Properties.TotalResults != nil:
		res.TotalResults = *fc.Properties.TotalResults
	default:
		res.TotalResults = len(res.Items)
	}
	return res, nil
}

func (f feature) item() (Item, error) {
	p := f.Properties
	item := Item{
		ID:    p.Identifier,
		Title: p.Title,
	}
	if item.ID == "" {
		item.ID = f.ID
	}
	if item.ID == "" {
		return Item{}, fmt.Errorf("missing identifier")
	}

	var err error
	for _, field := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{
		{"published", p.Published, &item.Published},
		{"updated", p.Updated, &item.Updated},
		{"startDate", p.StartDate, &item.SensingStart},
		{"completionDate", p.CompletionDate, &item.SensingEnd},
	} {
		if *field.dst, err = parseTime(field.raw); err != nil {
			return Item{}, fmt.Errorf("%s: %v", field.name, err)
		}
	}

	for _, l := range p.Links {
		if l.Rel == "enclosure" && l.Href != "" {
			item.Enclosure = l.Href
			break
		}
	}
	return item, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
