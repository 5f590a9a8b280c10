package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := IRObject{"entity": IRString("account"), "top": IRInt(5)}
	b := IRObject{"top": IRInt(5), "entity": IRString("account")}

	fa, err := Fingerprint(DomainQuery, a)
	require.NoError(t, err)
	fb, err := Fingerprint(DomainQuery, b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestFingerprint_DomainSeparation(t *testing.T) {
	v := IRObject{"entity": IRString("account")}

	assert.NotEqual(t,
		MustFingerprint(DomainQuery, v),
		MustFingerprint(DomainMetadata, v))
}

func TestFingerprint_ValueSensitive(t *testing.T) {
	a := MustFingerprint(DomainQuery, IRObject{"top": IRInt(5)})
	b := MustFingerprint(DomainQuery, IRObject{"top": IRInt(6)})
	assert.NotEqual(t, a, b)
}

func TestFingerprint_Error(t *testing.T) {
	_, err := Fingerprint(DomainQuery, IRObject{"x": IRNull{}})
	assert.Error(t, err)

	assert.Panics(t, func() {
		MustFingerprint(DomainQuery, IRNull{})
	})
}
