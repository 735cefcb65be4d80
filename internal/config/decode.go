package config

import (
	"fmt"

	"github.com/habitat-network/chrome-devproxy/internal/routes"
	"github.com/mitchellh/mapstructure"
)

// decodeRouteValue turns a raw config value into a route value. Strings are targets,
// maps are overrides.
func decodeRouteValue(raw any) (routes.RouteValue, error) {
	switch v := raw.(type) {
	case nil:
		return routes.TargetValue(""), nil
	case string:
		return routes.TargetValue(v), nil
	case map[string]any, map[any]any:
		var override routes.RouteOverride
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &override,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return routes.RouteValue{}, err
		}
		if err := decoder.Decode(v); err != nil {
			return routes.RouteValue{}, err
		}
		return routes.OverrideValue(&override), nil
	default:
		return routes.RouteValue{}, fmt.Errorf("unsupported route value of type %T", raw)
	}
}
