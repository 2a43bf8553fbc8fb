package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachdehooge/forest-loss-dashboard/internal/apperrors"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/config"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/fetcher/expr"
	"github.com/Zachdehooge/forest-loss-dashboard/internal/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.Client(), Options{
		BaseURL: srv.URL,
		Project: "test-project",
		Logger:  logger.Discard(),
	})
	return c, srv
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestCompute_PostsExpression(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody = decodeBody(t, r)
		w.Write([]byte(`{"result": 42.5}`))
	})

	var out float64
	err := c.ComputeInto(context.Background(), expr.Constant(42.5), &out)
	require.NoError(t, err)

	assert.Equal(t, "/v1/projects/test-project/value:compute", gotPath)
	assert.Contains(t, gotBody, "expression")
	assert.Equal(t, 42.5, out)
}

func TestCompute_NullResult(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": null}`))
	})

	var out *float64
	require.NoError(t, c.ComputeInto(context.Background(), expr.Constant(1), &out))
	assert.Nil(t, out)
}

func TestCompute_UpstreamErrorIsServiceError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"Too many concurrent aggregations.","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := c.Compute(context.Background(), expr.Constant(1))
	require.Error(t, err)
	assert.True(t, apperrors.IsService(err))
	assert.True(t, IsAPIStatus(err, http.StatusTooManyRequests))
	assert.Contains(t, apperrors.UserMessage(err), "quota")
	assert.Contains(t, apperrors.UserMessage(err), "Too many concurrent aggregations.")
}

func TestCompute_NonJSONErrorBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("upstream exploded"))
	})

	_, err := c.Compute(context.Background(), expr.Constant(1))
	require.Error(t, err)
	assert.True(t, apperrors.IsService(err))
	assert.Contains(t, err.Error(), "upstream exploded")
}

func TestCompute_UnreachableIsServiceError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(http.DefaultClient, Options{BaseURL: url, Project: "p", Logger: logger.Discard()})
	_, err := c.Compute(context.Background(), expr.Constant(1))
	require.Error(t, err)
	assert.True(t, apperrors.IsService(err))
}

func TestCompute_ObserverSeesEveryCall(t *testing.T) {
	var mu sync.Mutex
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": 1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), Options{
		BaseURL: srv.URL,
		Project: "p",
		Logger:  logger.Discard(),
		Observe: func(method string, err error, elapsed time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			methods = append(methods, method)
		},
	})

	require.NoError(t, c.Verify(context.Background()))
	require.NoError(t, c.Verify(context.Background()))
	assert.Equal(t, []string{"value:compute", "value:compute"}, methods)
}

func TestVerify_RejectsWrongAnswer(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result": 2}`))
	})
	assert.Error(t, c.Verify(context.Background()))
}

func TestComputeFeatures_FollowsPageTokens(t *testing.T) {
	var tokens []any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/test-project/table:computeFeatures", r.URL.Path)
		body := decodeBody(t, r)
		tokens = append(tokens, body["pageToken"])

		if body["pageToken"] == nil {
			w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"n":1}}],"nextPageToken":"page-2"}`))
			return
		}
		w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"n":2}},{"type":"Feature","properties":{"n":3}}]}`))
	})

	features, err := c.ComputeFeatures(context.Background(), expr.LoadTable("FAO/GAUL/2015/level1"))
	require.NoError(t, err)
	assert.Len(t, features, 3)
	assert.Equal(t, []any{nil, "page-2"}, tokens)
}

func TestComputeFeatures_PageLimitIsAnError(t *testing.T) {
	var pages int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{}}],"nextPageToken":"more"}`))
	})

	features, err := c.ComputeFeatures(context.Background(), expr.LoadTable("FAO/GAUL/2015/level1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsService(err))
	assert.Nil(t, features)
	assert.Equal(t, maxFeaturePages, pages)
}

func TestFetchBoundaries_FiltersAndSorts(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{"ADM1_NAME":"Nimba"}},
			{"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]},"properties":{"ADM1_NAME":"Bomi"}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]},"properties":{"ADM1_NAME":"Point County"}},
			{"type":"Feature","geometry":null,"properties":{"ADM1_NAME":"No Geometry"}},
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]},"properties":{}},
			{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[5,5],[6,5],[6,6],[5,5]]]},"properties":{"ADM1_NAME":"Nimba"}}
		]}`))
	})

	boundaries, err := c.FetchBoundaries(context.Background(), expr.LoadTable("x"), "ADM1_NAME")
	require.NoError(t, err)
	require.Len(t, boundaries, 2)
	assert.Equal(t, "Bomi", boundaries[0].Name)
	assert.Equal(t, "Nimba", boundaries[1].Name)
	assert.Equal(t, "Polygon", boundaries[1].Geometry.Type)
	assert.JSONEq(t, `[[[0,0],[1,0],[1,1],[0,0]]]`, string(boundaries[1].Geometry.Coordinates))
}

func TestCreateMap_SendsVisualization(t *testing.T) {
	var body map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/test-project/maps", r.URL.Path)
		body = decodeBody(t, r)
		w.Write([]byte(`{"name":"projects/test-project/maps/abc"}`))
	})

	name, err := c.CreateMap(context.Background(), expr.PixelArea(), Visualization{
		Min: 0, Max: 1, Palette: []string{"#006400"}, Opacity: 0.6,
	})
	require.NoError(t, err)
	assert.Equal(t, "projects/test-project/maps/abc", name)

	assert.Equal(t, "PNG", body["fileFormat"])
	vis := body["visualizationOptions"].(map[string]any)
	assert.Equal(t, []any{"006400"}, vis["paletteColors"])
	assert.Equal(t, 0.6, vis["opacity"])
}

func TestCreateMap_MissingName(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	_, err := c.CreateMap(context.Background(), expr.PixelArea(), Visualization{Max: 1})
	assert.True(t, apperrors.IsService(err))
}

func TestTile_FetchesRenderedPNG(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/projects/test-project/maps/abc/tiles/7/60/61", r.URL.Path)
		w.Write(png)
	})

	data, contentType, err := c.Tile(context.Background(), "projects/test-project/maps/abc", 7, 60, 61)
	require.NoError(t, err)
	assert.Equal(t, png, data)
	assert.Equal(t, "image/png", contentType)
}

func TestConnect_BadServiceAccountJSON(t *testing.T) {
	cfg := config.Default().EarthEngine
	cfg.ServiceAccountJSON = "not json"
	cfg.Project = "p"

	_, err := Connect(context.Background(), cfg, logger.Discard(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}

func TestConnect_MissingCredentialsFile(t *testing.T) {
	cfg := config.Default().EarthEngine
	cfg.CredentialsFile = t.TempDir() + "/missing.json"

	_, err := Connect(context.Background(), cfg, logger.Discard(), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsAuthentication(err))
}
