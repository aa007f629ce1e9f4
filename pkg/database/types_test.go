package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringArrayScanJSON(t *testing.T) {
	var a StringArray
	require.NoError(t, a.Scan([]byte(`["alice","bob"]`)))
	require.Equal(t, StringArray{"alice", "bob"}, a)
}

func TestStringArrayScanNil(t *testing.T) {
	var a StringArray
	require.NoError(t, a.Scan(nil))
	require.Empty(t, a)
}

func TestStringArrayContains(t *testing.T) {
	a := StringArray{"alice", "bob"}
	require.True(t, a.Contains("alice"))
	require.False(t, a.Contains("carol"))
	require.False(t, StringArray(nil).Contains("alice"))
}
