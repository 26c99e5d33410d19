package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalString(t *testing.T) {
	var v struct {
		D Duration `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"5m"}`), &v))
	require.Equal(t, 5*time.Minute, v.D.Duration)
}

func TestDuration_UnmarshalNanoseconds(t *testing.T) {
	var v struct {
		D Duration `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":60000000000}`), &v))
	require.Equal(t, time.Minute, v.D.Duration)
}

func TestDuration_UnmarshalInvalid(t *testing.T) {
	var v struct {
		D Duration `json:"d"`
	}
	require.Error(t, json.Unmarshal([]byte(`{"d":"not-a-duration"}`), &v))
	require.Error(t, json.Unmarshal([]byte(`{"d":true}`), &v))
}
