package idp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persona-compat/browserid-go/internal/key"
)

func TestBootstrapAndLoadFileKeyStore(t *testing.T) {
	dir := t.TempDir()

	created, err := BootstrapFileKeyStore(dir, "", func() (key.SecretKey, error) {
		return key.GenerateDSA(128)
	})
	require.NoError(t, err)

	// default name is root
	_, err = os.Stat(filepath.Join(dir, "root.secretkey"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "root.cert"))
	require.NoError(t, err)

	loaded, err := LoadFileKeyStore(dir, "root")
	require.NoError(t, err)
	assert.Equal(t, key.Fingerprint(created.PublicKey()), key.Fingerprint(loaded.PublicKey()))

	// the loaded pair must be usable
	message := []byte("probe")
	sig, err := loaded.SecretKey().Sign(message)
	require.NoError(t, err)
	assert.NoError(t, loaded.PublicKey().Verify(message, sig))
}

func TestLoadFileKeyStoreMissing(t *testing.T) {
	_, err := LoadFileKeyStore(t.TempDir(), "root")
	assert.Error(t, err)
}
