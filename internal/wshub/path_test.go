package wshub

import "testing"

import "github.com/stretchr/testify/require"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/chat", "/chat"},
		{"/chat/", "/chat"},
		{"/", "/"},
		{"", "/"},
		{"/a%2Fb", "/a/b"},
		{"/a/b/", "/a/b"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Normalize(c.in), "input=%q", c.in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"/chat", "/chat/", "/", "", "/a/b/c/"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		require.Equal(t, once, twice, "Normalize should be idempotent for %q", in)
	}
}

func TestValidatePath(t *testing.T) {
	require.True(t, ValidatePath("/chat"))
	require.True(t, ValidatePath("/"))
	require.False(t, ValidatePath(""))
	require.False(t, ValidatePath("chat"))
	require.False(t, ValidatePath("/chat?x=1"))
	require.False(t, ValidatePath("/chat#frag"))
}
