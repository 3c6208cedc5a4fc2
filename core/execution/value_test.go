package execution

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue_Encode(t *testing.T) {
	value, err := DecodeValue(NewUint(42).Encode())
	require.NoError(t, err)
	require.Equal(t, NewUint(42), value)

	value, err = DecodeValue(NewBytes([]byte("abc")).Encode())
	require.NoError(t, err)
	require.Equal(t, NewBytes([]byte("abc")), value)

	_, err = DecodeValue(nil)
	require.EqualError(t, err, "empty value")

	_, err = DecodeValue([]byte{byte(TypeUint), 1})
	require.EqualError(t, err, "invalid integer length 1")

	_, err = DecodeValue([]byte{0xff})
	require.EqualError(t, err, "unknown value type 0xff")
}

func TestValue_JSON(t *testing.T) {
	data, err := json.Marshal(map[string]Value{"count": NewUint(1)})
	require.NoError(t, err)
	require.JSONEq(t, `{"count":{"type":"uint","uint":1}}`, string(data))

	var values map[string]Value
	err = json.Unmarshal([]byte(`{"a":{"type":"uint","uint":3},"b":{"type":"bytes","bytes":"AQI="}}`), &values)
	require.NoError(t, err)
	require.Equal(t, NewUint(3), values["a"])
	require.Equal(t, NewBytes([]byte{1, 2}), values["b"])

	var v Value
	err = json.Unmarshal([]byte(`{"type":"float"}`), &v)
	require.EqualError(t, err, "unknown value type 'float'")

	err = json.Unmarshal([]byte(`[]`), &v)
	require.Error(t, err)
}
