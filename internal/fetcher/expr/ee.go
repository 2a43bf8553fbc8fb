package expr

// Typed wrappers over the Earth Engine functions this dashboard calls. They
// mirror the client library's method names so queries read like the Earth
// Engine code editor.

type Image struct{ Node }

type Geometry struct{ Node }

type FeatureCollection struct{ Node }

type Filter struct{ Node }

type Reducer struct{ Node }

type Dictionary struct{ Node }

// LoadImage references an image asset by id.
func LoadImage(id string) Image {
	return Image{Invoke("Image.load", map[string]Node{"id": Constant(id)})}
}

// ConstantImage is a single-band image with value v everywhere.
func ConstantImage(v float64) Image {
	return Image{Invoke("Image.constant", map[string]Node{"value": Constant(v)})}
}

// PixelArea is an image whose pixels hold their area in square meters.
func PixelArea() Image {
	return Image{Invoke("Image.pixelArea", nil)}
}

func (i Image) Select(bands ...string) Image {
	selectors := make([]Node, len(bands))
	for n, b := range bands {
		selectors[n] = Constant(b)
	}
	return Image{Invoke("Image.select", map[string]Node{
		"input":         i,
		"bandSelectors": List(selectors...),
	})}
}

func (i Image) binary(function string, other Image) Image {
	return Image{Invoke(function, map[string]Node{"image1": i, "image2": other})}
}

func (i Image) Gte(v float64) Image        { return i.binary("Image.gte", ConstantImage(v)) }
func (i Image) Lte(v float64) Image        { return i.binary("Image.lte", ConstantImage(v)) }
func (i Image) Eq(v float64) Image         { return i.binary("Image.eq", ConstantImage(v)) }
func (i Image) Neq(v float64) Image        { return i.binary("Image.neq", ConstantImage(v)) }
func (i Image) DivideBy(v float64) Image   { return i.binary("Image.divide", ConstantImage(v)) }
func (i Image) And(other Image) Image      { return i.binary("Image.and", other) }
func (i Image) Multiply(other Image) Image { return i.binary("Image.multiply", other) }

func (i Image) Clip(g Geometry) Image {
	return Image{Invoke("Image.clip", map[string]Node{"input": i, "geometry": g})}
}

func (i Image) UpdateMask(mask Image) Image {
	return Image{Invoke("Image.updateMask", map[string]Node{"image": i, "mask": mask})}
}

// SelfMask masks out zero pixels.
func (i Image) SelfMask() Image {
	return i.UpdateMask(i)
}

// ReduceRegion reduces all pixels inside g to a dictionary keyed by band.
func (i Image) ReduceRegion(r Reducer, g Geometry, scale, maxPixels float64) Dictionary {
	return Dictionary{Invoke("Image.reduceRegion", map[string]Node{
		"image":     i,
		"reducer":   r,
		"geometry":  g,
		"scale":     Constant(scale),
		"maxPixels": Constant(maxPixels),
	})}
}

func SumReducer() Reducer {
	return Reducer{Invoke("Reducer.sum", nil)}
}

func (d Dictionary) Get(key string) Node {
	return Invoke("Dictionary.get", map[string]Node{"dictionary": d, "key": Constant(key)})
}

// LoadTable references a feature collection asset by id.
func LoadTable(id string) FeatureCollection {
	return FeatureCollection{Invoke("Collection.loadTable", map[string]Node{"tableId": Constant(id)})}
}

func (fc FeatureCollection) Filter(f Filter) FeatureCollection {
	return FeatureCollection{Invoke("Collection.filter", map[string]Node{"collection": fc, "filter": f})}
}

// Geometry unions every feature's geometry.
func (fc FeatureCollection) Geometry() Geometry {
	return Geometry{Invoke("Collection.geometry", map[string]Node{"collection": fc})}
}

// AggregateArray lists a property across all features.
func (fc FeatureCollection) AggregateArray(property string) Node {
	return Invoke("AggregateFeatureCollection.array", map[string]Node{"collection": fc, "property": Constant(property)})
}

// Equals matches features whose field equals value.
func Equals(field string, value any) Filter {
	return Filter{Invoke("Filter.equals", map[string]Node{"leftField": Constant(field), "rightValue": Constant(value)})}
}
