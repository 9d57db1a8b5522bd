package config

import (
	"sort"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a free form set of settings.
type AttributeMap map[string]interface{}

// Has reports whether the key is set.
func (am AttributeMap) Has(key string) bool {
	_, has := am[key]
	return has
}

// DecodeAttributes decodes the attributes into T using its json tags. Keys T does not know are an error.
func DecodeAttributes[T any](attributes AttributeMap) (T, error) {
	var out T
	if len(attributes) == 0 {
		return out, nil
	}
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Result:   &out,
		Metadata: &md,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return out, err
	}
	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		return out, errors.Errorf("unknown attributes %q", md.Unused)
	}
	return out, nil
}
