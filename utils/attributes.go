package utils

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// TransformAttributeMapToStruct decodes attributes, as read from a JSON config file, into the
// struct pointed to by to using its json tags. Keys with no matching field are an error.
func TransformAttributeMapToStruct(to interface{}, attributes map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "json",
		Result:      to,
		ErrorUnused: true,
	})
	if err != nil {
		return errors.Wrap(err, "error creating decoder")
	}
	return decoder.Decode(attributes)
}
