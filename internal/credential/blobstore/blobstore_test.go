package blobstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certledger/internal/credential/models"
	"certledger/internal/sentinel"
	"certledger/pkg/testutil"
)

func TestMemoryStore_StoreAndFetch(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	first, err := store.Store(ctx, []byte("hello"), models.StoreHint{})
	require.NoError(t, err)
	second, err := store.Store(ctx, []byte("hello"), models.StoreHint{})
	require.NoError(t, err)
	other, err := store.Store(ctx, []byte("hello!"), models.StoreHint{})
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical payloads share an address")
	assert.NotEqual(t, first, other)
	assert.True(t, strings.HasPrefix(first, "bafkrei"), "raw CIDv1 in base32: %s", first)
	require.NoError(t, ValidateCID(first))

	payload, err := store.Fetch(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), payload)
}

func TestMemoryStore_FetchUnknown(t *testing.T) {
	_, err := NewMemory().Fetch(context.Background(), "bafkreiunknown")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().Store(ctx, []byte("hello"), models.StoreHint{})
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
}

func TestMemoryStore_FilesUnderMFSPath(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	contentID, err := store.Store(ctx, []byte("diploma"), models.StoreHint{CertID: "CERT-1", FileName: "ijazah.pdf"})
	require.NoError(t, err)

	got, ok := store.Lookup("/certs/CERT-1-ijazah.pdf")
	require.True(t, ok)
	assert.Equal(t, contentID, got)
}

func TestMFSPath(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		hint models.StoreHint
		want string
	}{
		{name: "plain name", dir: "/certs", hint: models.StoreHint{CertID: "CERT-1", FileName: "a.pdf"}, want: "/certs/CERT-1-a.pdf"},
		{name: "default dir", hint: models.StoreHint{CertID: "CERT-1", FileName: "a.pdf"}, want: "/certs/CERT-1-a.pdf"},
		{name: "strips directories", dir: "/certs", hint: models.StoreHint{CertID: "CERT-1", FileName: `..\..\evil.pdf`}, want: "/certs/CERT-1-evil.pdf"},
		{name: "replaces spaces", dir: "archive", hint: models.StoreHint{CertID: "CERT-2", FileName: "my diploma.pdf"}, want: "/archive/CERT-2-my_diploma.pdf"},
		{name: "empty name", dir: "/certs", hint: models.StoreHint{CertID: "CERT-3"}, want: "/certs/CERT-3-certificate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MFSPath(tt.dir, tt.hint))
		})
	}
}

func TestComputeCID_Deterministic(t *testing.T) {
	a, err := ComputeCID([]byte("payload"))
	require.NoError(t, err)
	b, err := ComputeCID([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Error(t, ValidateCID("not-a-cid"))
}

func TestComputeCID_KnownPayload(t *testing.T) {
	c, err := ComputeCID(testutil.HelloPayload)
	require.NoError(t, err)
	assert.Equal(t, testutil.HelloCID, c)
	assert.NoError(t, ValidateCID(c))
}
