package catalog

import (
	"fmt"

	"github.com/JonMunkholm/osversion-ingest/internal/core"
)

// Document keys, lower-cased.
const (
	keyVersions = "versions"
	keyName     = "name"
	keyImages   = "images"
	keyCID      = "cid"
	keyIID      = "iid"
)

// ExtractRecords flattens a catalog document into one record per
// (version, image) pair tagged with environment.
//
// The document is expected as
//
//	{"versions": [{"name": "...", "images": [{"cid": "...", "iid": "..."}]}]}
//
// with keys in any casing. A missing key or a value of the wrong kind fails
// with an error wrapping core.ErrMalformedCatalog; nothing is skipped.
func ExtractRecords(doc Node, environment string) ([]core.Record, error) {
	doc = LowerKeys(doc)

	versions, err := arrayAt(doc, keyVersions, "$")
	if err != nil {
		return nil, err
	}

	var records []core.Record
	for vi, version := range versions {
		vpath := fmt.Sprintf("$.versions[%d]", vi)

		name, err := stringAt(version, keyName, vpath)
		if err != nil {
			return nil, err
		}
		images, err := arrayAt(version, keyImages, vpath)
		if err != nil {
			return nil, err
		}

		for ii, image := range images {
			ipath := fmt.Sprintf("%s.images[%d]", vpath, ii)

			cid, err := stringAt(image, keyCID, ipath)
			if err != nil {
				return nil, err
			}
			iid, err := stringAt(image, keyIID, ipath)
			if err != nil {
				return nil, err
			}

			records = append(records, core.Record{
				OsVersion:   name,
				ComponentID: cid,
				ImageID:     iid,
				Environment: environment,
			})
		}
	}

	return records, nil
}

func field(n Node, key, path string) (Node, error) {
	if n.Kind != KindObject {
		return Node{}, fmt.Errorf("%w: %s is %s, want object", core.ErrMalformedCatalog, path, n.Kind)
	}
	v, ok := n.Get(key)
	if !ok {
		return Node{}, fmt.Errorf("%w: %s missing %q", core.ErrMalformedCatalog, path, key)
	}
	return v, nil
}

func arrayAt(n Node, key, path string) ([]Node, error) {
	v, err := field(n, key, path)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindArray {
		return nil, fmt.Errorf("%w: %s.%s is %s, want array", core.ErrMalformedCatalog, path, key, v.Kind)
	}
	return v.Items, nil
}

func stringAt(n Node, key, path string) (string, error) {
	v, err := field(n, key, path)
	if err != nil {
		return "", err
	}
	s, ok := v.Str()
	if !ok {
		return "", fmt.Errorf("%w: %s.%s is not a string", core.ErrMalformedCatalog, path, key)
	}
	return s, nil
}
