package geo

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Collection is a FeatureCollection whose features are kept byte for byte as
// PostGIS produced them. Property numbers keep their precision and
// coordinates keep any Z or M ordinates.
type Collection struct {
	Features []json.RawMessage
}

// EmptyCollection returns a collection that marshals with "features": [].
func EmptyCollection() *Collection {
	return &Collection{Features: []json.RawMessage{}}
}

func (c Collection) MarshalJSON() ([]byte, error) {
	features := c.Features
	if features == nil {
		features = []json.RawMessage{}
	}
	return json.Marshal(collectionDoc{Type: "FeatureCollection", Features: features})
}

type collectionDoc struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

// decodeCollection checks the aggregate document and drops features without
// geometry. orb validates each feature; the reply is built from the raw bytes.
func decodeCollection(raw []byte) (*Collection, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return EmptyCollection(), nil
	}

	var doc collectionDoc
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if doc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode feature collection: unexpected type %q", doc.Type)
	}

	kept := make([]json.RawMessage, 0, len(doc.Features))
	for i, rawFeature := range doc.Features {
		f, err := geojson.UnmarshalFeature(rawFeature)
		if err != nil {
			return nil, fmt.Errorf("decode feature %d: %w", i, err)
		}
		if f.Geometry == nil {
			continue
		}
		kept = append(kept, rawFeature)
	}
	return &Collection{Features: kept}, nil
}
