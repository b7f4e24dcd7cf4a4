package testing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionArgs_Int(t *testing.T) {
	args := actionArgs{
		"int":    1,
		"float":  float64(2),
		"frac":   2.5,
		"string": " 3 ",
		"word":   "three",
		"bool":   true,
	}

	tests := []struct {
		key     string
		want    int
		wantErr string
	}{
		{"int", 1, ""},
		{"float", 2, ""},
		{"string", 3, ""},
		{"frac", 0, "whole number"},
		{"word", 0, "must be a number"},
		{"bool", 0, "must be a number"},
		{"missing", 0, "is missing"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := args.Int(tt.key)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				var argErr *ArgumentError
				require.True(t, errors.As(err, &argErr))
				assert.Equal(t, tt.key, argErr.Name)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	n, err := args.IntOr("missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestActionArgs_StringAndBool(t *testing.T) {
	args := actionArgs{
		"s":     "ada.lovelace@signflow.test",
		"n":     float64(5),
		"b":     "true",
		"bb":    false,
		"bad":   "maybe",
		"list":  []interface{}{"a"},
		"empty": nil,
	}

	s, err := args.String("s")
	require.NoError(t, err)
	assert.Equal(t, "ada.lovelace@signflow.test", s)

	s, err = args.String("n")
	require.NoError(t, err)
	assert.Equal(t, "5", s)

	_, err = args.String("list")
	assert.Error(t, err)

	s, err = args.StringOr("empty", "default")
	require.NoError(t, err)
	assert.Equal(t, "default", s)

	b, err := args.BoolOr("b", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = args.BoolOr("bb", true)
	require.NoError(t, err)
	assert.False(t, b)

	_, err = args.BoolOr("bad", false)
	assert.Error(t, err)

	b, err = args.BoolOr("missing", true)
	require.NoError(t, err)
	assert.True(t, b)
}

func TestActionArgs_CollectionsAndFloat(t *testing.T) {
	args := actionArgs{
		"text":    map[string]interface{}{"comment": "ok", "amount": 1200},
		"signers": []interface{}{"a@x", "b@x"},
		"tol":     "12.5",
	}

	m, err := args.StringMap("text")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"comment": "ok", "amount": "1200"}, m)

	m, err = args.StringMap("absent")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = args.StringMap("signers")
	assert.Error(t, err)

	list, err := args.List("signers")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = args.List("text")
	assert.Error(t, err)

	f, err := args.FloatOr("tol", DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	f, err = args.FloatOr("absent", DefaultTolerance)
	require.NoError(t, err)
	assert.Equal(t, DefaultTolerance, f)
}

func TestIsHarnessError(t *testing.T) {
	assert.True(t, isHarnessError(argErr("code", "is missing")))
	assert.True(t, isHarnessError(errors.New("unknown action 'x'")))
	assert.False(t, isHarnessError(errors.New("Invalid verification code")))
}
