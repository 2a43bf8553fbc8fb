package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
)

const (
	methodCompute  = "value:compute"
	methodFeatures = "table:computeFeatures"
	methodMaps     = "maps"

	featurePageSize = 1000
	maxFeaturePages = 50
)

// Compute evaluates node on the server and returns the raw JSON result.
func (c *Client) Compute(ctx context.Context, node expr.Node) (json.RawMessage, error) {
	e, err := expr.Encode(node)
	if err != nil {
		return nil, apperrors.Internal("failed to encode computation", err)
	}

	var resp struct {
		Result json.RawMessage `json:"result"`
	}
	if err := c.post(ctx, methodCompute, map[string]any{"expression": e}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// ComputeInto evaluates node and decodes the result into out.
func (c *Client) ComputeInto(ctx context.Context, node expr.Node, out any) error {
	raw, err := c.Compute(ctx, node)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.ServiceError("Earth Engine result had an unexpected shape", err, map[string]any{"method": methodCompute})
	}
	return nil
}

// ComputeFeatures evaluates a feature collection and returns every feature,
// following nextPageToken until the service stops returning one. A result
// longer than maxFeaturePages pages is an error, never a partial list.
func (c *Client) ComputeFeatures(ctx context.Context, fc expr.FeatureCollection) ([]Feature, error) {
	e, err := expr.Encode(fc)
	if err != nil {
		return nil, apperrors.Internal("failed to encode feature collection", err)
	}

	var all []Feature
	pageToken := ""
	for page := 0; page < maxFeaturePages; page++ {
		body := map[string]any{
			"expression": e,
			"pageSize":   featurePageSize,
		}
		if pageToken != "" {
			body["pageToken"] = pageToken
		}

		var resp struct {
			Type          string    `json:"type"`
			Features      []Feature `json:"features"`
			NextPageToken string    `json:"nextPageToken"`
		}
		if err := c.post(ctx, methodFeatures, body, &resp); err != nil {
			return nil, err
		}

		all = append(all, resp.Features...)
		c.logger.Debug("fetched feature page", "page", page+1, "features", len(resp.Features), "total", len(all))

		if resp.NextPageToken == "" {
			return all, nil
		}
		pageToken = resp.NextPageToken
	}

	c.logger.Warn("feature pagination exceeded page limit", "pages", maxFeaturePages, "features", len(all))
	return nil, apperrors.ServiceError(
		fmt.Sprintf("Earth Engine returned more than %d pages of features", maxFeaturePages), nil,
		map[string]any{"method": methodFeatures, "features": len(all)})
}

// Visualization is how a map layer renders band values to colors.
type Visualization struct {
	Min     float64
	Max     float64
	Palette []string
	Opacity float64
}

// CreateMap registers image for tiling and returns the map resource name,
// e.g. "projects/p/maps/abc123".
func (c *Client) CreateMap(ctx context.Context, image expr.Image, vis Visualization) (string, error) {
	e, err := expr.Encode(image)
	if err != nil {
		return "", apperrors.Internal("failed to encode map image", err)
	}

	opts := map[string]any{
		"ranges": []map[string]float64{{"min": vis.Min, "max": vis.Max}},
	}
	if len(vis.Palette) > 0 {
		palette := make([]string, len(vis.Palette))
		for i, p := range vis.Palette {
			palette[i] = strings.TrimPrefix(p, "#")
		}
		opts["paletteColors"] = palette
	}
	if vis.Opacity > 0 {
		opts["opacity"] = vis.Opacity
	}

	var resp struct {
		Name string `json:"name"`
	}
	body := map[string]any{
		"expression":           e,
		"fileFormat":           "PNG",
		"visualizationOptions": opts,
	}
	if err := c.post(ctx, methodMaps, body, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		return "", apperrors.ServiceError("Earth Engine did not return a map id", nil, map[string]any{"method": methodMaps})
	}
	return resp.Name, nil
}

// Tile fetches one rendered tile of a map created with CreateMap.
func (c *Client) Tile(ctx context.Context, mapName string, z, x, y int) ([]byte, string, error) {
	start := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", apperrors.ServiceError("Earth Engine request was cancelled", err, map[string]any{"method": "tiles"})
	}

	url := fmt.Sprintf("%s/v1/%s/tiles/%d/%d/%d", c.baseURL, mapName, z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apperrors.Internal("failed to build tile request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	body, err := c.do(req, "tiles")
	if c.observe != nil {
		c.observe("tiles", err, time.Since(start))
	}
	if err != nil {
		return nil, "", err
	}
	return body, http.DetectContentType(body), nil
}
