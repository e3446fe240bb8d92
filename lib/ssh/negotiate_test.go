package ssh

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindCommonAlgorithm(t *testing.T) {
	tests := []struct {
		client, server NameList
		want           string
		ok             bool
	}{
		{NameList{"a", "b", "c"}, NameList{"b", "c"}, "b", true},
		{NameList{"a", "b", "c"}, NameList{"c", "b", "a"}, "a", true},
		{NameList{"c"}, NameList{"a", "b", "c"}, "c", true},
		{NameList{"x"}, NameList{"y"}, "", false},
		{nil, NameList{"y"}, "", false},
		{NameList{"x"}, nil, "", false},
	}
	for _, test := range tests {
		got, ok := findCommonAlgorithm(test.client, test.server)
		require.Equal(t, test.ok, ok, "%v %v", test.client, test.server)
		require.Equal(t, test.want, got)
	}
}

func kexInitFrom(prefs *Preferences) *KexInitMsg {
	m := new(KexInitMsg)
	dst, src := m.lists(), prefs.lists()
	for i := range dst {
		*dst[i] = *src[i]
	}
	m.FirstKexFollows = prefs.FirstKexFollows
	return m
}

func TestFindAgreedAlgorithms(t *testing.T) {
	server := DefaultPreferences()
	client := DefaultPreferences()
	client.KexAlgorithms = NameList{"sntrup761x25519-sha512@openssh.com", kexAlgoECDH384, kexAlgoCurve25519SHA256}
	client.CiphersClientServer = NameList{"aes256-ctr", "aes128-ctr"}
	client.MACsServerClient = NameList{"hmac-sha1"}
	client.LanguagesClientServer = NameList{"en"}
	client.FirstKexFollows = true

	algs, err := findAgreedAlgorithms(kexInitFrom(client), kexInitFrom(server))
	require.NoError(t, err)
	require.Equal(t, kexAlgoECDH384, algs.Kex)
	require.Equal(t, server.HostKeyAlgorithms[0], algs.HostKey)
	require.Equal(t, "aes256-ctr", algs.ClientServer.Cipher)
	require.Equal(t, server.CiphersServerClient[0], algs.ServerClient.Cipher)
	require.Equal(t, "hmac-sha1", algs.ServerClient.MAC)
	require.Equal(t, compressionNone, algs.ClientServer.Compression)
	require.Empty(t, algs.ClientServer.Language)
	require.Empty(t, algs.ServerClient.Language)
	require.True(t, algs.ClientFirstKexFollows)
	require.False(t, algs.ServerFirstKexFollows)
}

func TestFindAgreedAlgorithmsLanguages(t *testing.T) {
	server := DefaultPreferences()
	server.LanguagesServerClient = NameList{"de", "en"}
	client := DefaultPreferences()
	client.LanguagesServerClient = NameList{"en", "de"}

	algs, err := findAgreedAlgorithms(kexInitFrom(client), kexInitFrom(server))
	require.NoError(t, err)
	require.Equal(t, "en", algs.ServerClient.Language)
}

func TestFindAgreedAlgorithmsMandatory(t *testing.T) {
	for _, c := range Categories() {
		if !c.Mandatory() {
			continue
		}
		client := DefaultPreferences()
		client.Set(c, NameList{"no-such-algorithm"})

		_, err := findAgreedAlgorithms(kexInitFrom(client), kexInitFrom(DefaultPreferences()))
		var ne *NegotiationError
		require.True(t, errors.As(err, &ne), c.String())
		require.Equal(t, c, ne.Category)
		require.Equal(t, NameList{"no-such-algorithm"}, ne.Client)
		require.Contains(t, err.Error(), "no matching "+c.String())
		require.True(t, IsClean(err))
	}
}

func TestCategories(t *testing.T) {
	require.Len(t, Categories(), 10)
	require.True(t, CategoryKex.Mandatory())
	require.True(t, CategoryCompressionServerClient.Mandatory())
	require.False(t, CategoryLanguageClientServer.Mandatory())
	require.False(t, CategoryLanguageServerClient.Mandatory())
	require.Equal(t, "kex_algorithms", CategoryKex.Field())
	require.Equal(t, "host key algorithm", CategoryHostKey.String())
	require.Equal(t, "category(42)", Category(42).String())
}
