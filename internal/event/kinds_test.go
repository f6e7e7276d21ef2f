package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		kind int
		want Class
	}{
		{0, Replaceable},
		{1, Regular},
		{2, Regular},
		{3, Replaceable},
		{4, Regular},
		{7, Regular},
		{1000, Regular},
		{9999, Regular},
		{10000, Replaceable},
		{10002, Replaceable},
		{19999, Replaceable},
		{20000, Ephemeral},
		{29999, Ephemeral},
		{30000, Addressable},
		{30023, Addressable},
		{39999, Addressable},
		{40000, Regular},
		{65535, Regular},
	}

	for _, tc := range testCases {
		t.Run(tc.want.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.kind), "kind %d", tc.kind)
		})
	}
}

func TestIsReplaceableClass(t *testing.T) {
	assert.True(t, IsReplaceableClass(0))
	assert.True(t, IsReplaceableClass(30023))
	assert.False(t, IsReplaceableClass(1))
	assert.False(t, IsReplaceableClass(20001))
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "unknown", Class(42).String())
}
