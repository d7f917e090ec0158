package display

import (
	"encoding/json"
	"fmt"
)

// Transform mirrors wl_output.transform.
type Transform int32

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

var transformNames = map[Transform]string{
	TransformNormal:     "normal",
	Transform90:         "90",
	Transform180:        "180",
	Transform270:        "270",
	TransformFlipped:    "flipped",
	TransformFlipped90:  "flipped-90",
	TransformFlipped180: "flipped-180",
	TransformFlipped270: "flipped-270",
}

func (t Transform) String() string {
	if name, ok := transformNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseTransform converts a transform name back to its protocol value.
func ParseTransform(name string) (Transform, error) {
	for t, n := range transformNames {
		if n == name {
			return t, nil
		}
	}
	return TransformNormal, fmt.Errorf("unknown transform %q", name)
}

// Transforms are persisted by name so the store file stays readable and
// independent of protocol enum values.
func (t Transform) MarshalJSON() ([]byte, error) {
	name, ok := transformNames[t]
	if !ok {
		return nil, fmt.Errorf("cannot encode transform value %d", int32(t))
	}
	return json.Marshal(name)
}

func (t *Transform) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseTransform(name)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
