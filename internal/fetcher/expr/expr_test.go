package expr

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_ConstantRoot(t *testing.T) {
	e, err := Encode(Constant(1))
	require.NoError(t, err)

	require.Len(t, e.Values, 1)
	assert.Equal(t, 1, e.Values[e.Result].ConstantValue)
}

func TestEncode_InlinesSingleUseNodes(t *testing.T) {
	img := LoadImage("UMD/hansen/global_forest_change_2024_v1_12").Select("lossyear")

	e, err := Encode(img)
	require.NoError(t, err)

	require.Len(t, e.Values, 1, "a chain without sharing collapses into the result entry")
	root := e.Values[e.Result].FunctionInvocationValue
	require.NotNil(t, root)
	assert.Equal(t, "Image.select", root.FunctionName)

	input := root.Arguments["input"].FunctionInvocationValue
	require.NotNil(t, input)
	assert.Equal(t, "Image.load", input.FunctionName)
	assert.Equal(t, "UMD/hansen/global_forest_change_2024_v1_12", input.Arguments["id"].ConstantValue)

	bands := root.Arguments["bandSelectors"].ArrayValue
	require.NotNil(t, bands)
	assert.Equal(t, "lossyear", bands.Values[0].ConstantValue)
}

func TestEncode_SharesRepeatedSubgraphs(t *testing.T) {
	hansen := LoadImage("UMD/hansen/global_forest_change_2024_v1_12")
	forest := hansen.Select("treecover2000").Gte(30)
	loss := hansen.Select("lossyear")

	years := make([]Node, 0, 3)
	for y := 1; y <= 3; y++ {
		years = append(years, loss.Eq(float64(y)).And(forest))
	}

	raw, err := MarshalCanonical(List(years...))
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(string(raw), `"Image.load"`), "the asset is loaded once and referenced")
	assert.Equal(t, 1, strings.Count(string(raw), `"Image.gte"`), "the forest mask is built once")
	assert.Equal(t, 3, strings.Count(string(raw), `"Image.eq"`))
	assert.Contains(t, string(raw), `"valueReference"`)
}

func TestEncode_IsDeterministic(t *testing.T) {
	build := func() Node {
		counties := LoadTable("FAO/GAUL/2015/level1").
			Filter(Equals("ADM0_NAME", "Liberia")).
			Filter(Equals("ADM1_NAME", "Lofa"))
		area := PixelArea().DivideBy(10000)
		return LoadImage("UMD/hansen/global_forest_change_2024_v1_12").
			Select("treecover2000").Gte(30).Multiply(area).
			ReduceRegion(SumReducer(), counties.Geometry(), 1000, 1e9).
			Get("treecover2000")
	}

	first, err := MarshalCanonical(build())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := MarshalCanonical(build())
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestEncode_ReferencesResolve(t *testing.T) {
	shared := LoadImage("a").Select("b")
	root := List(shared.Gte(1), shared.Lte(2), shared.Eq(3))

	e, err := Encode(root)
	require.NoError(t, err)

	var walk func(v ValueNode)
	walk = func(v ValueNode) {
		if v.ValueReference != "" {
			_, ok := e.Values[v.ValueReference]
			assert.True(t, ok, "dangling reference %s", v.ValueReference)
			return
		}
		if v.FunctionInvocationValue != nil {
			for _, a := range v.FunctionInvocationValue.Arguments {
				walk(a)
			}
		}
		if v.ArrayValue != nil {
			for _, item := range v.ArrayValue.Values {
				walk(item)
			}
		}
	}
	for _, v := range e.Values {
		walk(v)
	}
	_, ok := e.Values[e.Result]
	assert.True(t, ok)
}

func TestEncode_WireShape(t *testing.T) {
	raw, err := MarshalCanonical(PixelArea())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "0", decoded["result"])
	assert.JSONEq(t, `{"result":"0","values":{"0":{"functionInvocationValue":{"functionName":"Image.pixelArea"}}}}`, string(raw))
}

func TestEncode_NilRoot(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestFilterEquals_Arguments(t *testing.T) {
	e, err := Encode(Equals("ADM1_NAME", "Lofa"))
	require.NoError(t, err)

	fn := e.Values[e.Result].FunctionInvocationValue
	require.NotNil(t, fn)
	assert.Equal(t, "Filter.equals", fn.FunctionName)
	assert.Equal(t, "ADM1_NAME", fn.Arguments["leftField"].ConstantValue)
	assert.Equal(t, "Lofa", fn.Arguments["rightValue"].ConstantValue)
}

func TestEncode_ZeroConstantsAreKept(t *testing.T) {
	raw, err := MarshalCanonical(List(Constant(0), Constant(false), Constant(nil)))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"result":"0","values":{"0":{"arrayValue":{"values":[{"constantValue":0},{"constantValue":false},{"constantValue":null}]}}}}`,
		string(raw))
}
