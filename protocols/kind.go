package protocols

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the closed set of pool variants the router can price.
type Kind uint8

const (
	KindWeighted Kind = iota + 1
	KindStable
	KindBuffer
	KindGyro2CLP
)

var kindNames = map[Kind]string{
	KindWeighted: "WEIGHTED",
	KindStable:   "STABLE",
	KindBuffer:   "BUFFER",
	KindGyro2CLP: "GYRO",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a snapshot pool type onto a Kind. Composable and
// metastable variants share the stable curve.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WEIGHTED":
		return KindWeighted, nil
	case "STABLE", "COMPOSABLE_STABLE", "META_STABLE":
		return KindStable, nil
	case "BUFFER":
		return KindBuffer, nil
	case "GYRO", "GYRO2":
		return KindGyro2CLP, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedPoolType, s)
}

// SwapKind is the swap direction: exact input or exact output.
type SwapKind uint8

const (
	GivenIn SwapKind = iota
	GivenOut
)

func (k SwapKind) String() string {
	if k == GivenOut {
		return "GivenOut"
	}
	return "GivenIn"
}

func (k SwapKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *SwapKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSwapKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseSwapKind accepts "GivenIn"/"GivenOut" in any case.
func ParseSwapKind(s string) (SwapKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "givenin", "exact_in", "in":
		return GivenIn, nil
	case "givenout", "exact_out", "out":
		return GivenOut, nil
	}
	return 0, fmt.Errorf("unknown swap kind %q", s)
}
