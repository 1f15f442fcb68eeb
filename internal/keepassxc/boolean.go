package keepassxc

import (
	"encoding/json"
	"fmt"
)

// Boolean is a protocol boolean. KeePassXC encodes booleans as the strings
// "true" and "false"; plain JSON booleans are accepted as well.
type Boolean bool

// MarshalJSON encodes b as a string.
func (b Boolean) MarshalJSON() ([]byte, error) {
	if b {
		return []byte(`"true"`), nil
	}
	return []byte(`"false"`), nil
}

// UnmarshalJSON accepts "true", "false", true and false.
func (b *Boolean) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"true"`, "true":
		*b = true
	case `"false"`, "false", `""`, "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// flexString accepts both JSON strings and numbers. Error codes arrive in
// either form depending on the KeePassXC version.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = flexString(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("invalid string or number %s", data)
	}
	*s = flexString(num.String())
	return nil
}
