package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuchat-io/docuchat/internal/config"
)

func newLocalStore(t *testing.T) Store {
	t.Helper()
	store, err := New(config.FileStoreConfig{
		Type: "local",
		Data: map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)
	return store
}

func TestLocalStoreTenantPrefixedKeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newLocalStore(t)

	content := "hello from the widget"
	key := "company-1/doc-1.txt"
	require.NoError(t, store.Save(ctx, key, strings.NewReader(content), int64(len(content))))

	blob, err := store.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(blob)
	require.NoError(t, blob.Close())
	require.NoError(t, err)
	require.Equal(t, content, string(data))

	require.NoError(t, store.Delete(ctx, key))
	_, err = store.Open(ctx, key)
	require.Error(t, err)
}

func TestLocalStoreDeleteMissingKey(t *testing.T) {
	store := newLocalStore(t)
	require.NoError(t, store.Delete(context.Background(), "company-1/gone.txt"))
}

func TestValidKey(t *testing.T) {
	valid := []string{
		"doc.txt",
		"company-1/doc-1.txt",
		"a/b/c.md",
		"report..v2.txt",
	}
	for _, key := range valid {
		require.NoError(t, validKey(key), key)
	}

	invalid := []string{
		"",
		"/etc/passwd",
		"../escape.txt",
		"company/../escape.txt",
		"company/./doc.txt",
		"company//doc.txt",
		"trailing/",
		"windows\\style.txt",
	}
	for _, key := range invalid {
		require.Error(t, validKey(key), key)
	}
}
