package registry

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uicp/engine/pkg/manifest"
)

func TestInMemoryRegistry_RegisterAndResolveHighestVersion(t *testing.T) {
	r := NewInMemoryRegistry(nil)
	wasmV1 := []byte("module-v1")
	wasmV2 := []byte("module-v2")

	require.NoError(t, r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "1.0.0"}, wasmV1))
	require.NoError(t, r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "2.0.0"}, wasmV2))

	entry, err := r.Resolve("csv.parse", "")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", entry.Manifest.Version)
	assert.Equal(t, wasmV2, entry.Wasm)
}

func TestInMemoryRegistry_ResolveWithConstraint(t *testing.T) {
	r := NewInMemoryRegistry(nil)
	require.NoError(t, r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "1.0.0"}, []byte("v1")))
	require.NoError(t, r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "1.5.0"}, []byte("v1.5")))
	require.NoError(t, r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "2.0.0"}, []byte("v2")))

	entry, err := r.Resolve("csv.parse", "^1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.5.0", entry.Manifest.Version)
}

func TestInMemoryRegistry_ResolveNotFound(t *testing.T) {
	r := NewInMemoryRegistry(nil)
	_, err := r.Resolve("missing", "")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func TestInMemoryRegistry_RejectsInvalidSemver(t *testing.T) {
	r := NewInMemoryRegistry(nil)
	err := r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "not-a-version"}, []byte("x"))
	assert.Error(t, err)
}

func TestInMemoryRegistry_RejectsDigestMismatch(t *testing.T) {
	r := NewInMemoryRegistry(nil)
	err := r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "1.0.0", Digest: "sha256:wrong"}, []byte("x"))
	assert.Error(t, err)
}

func TestInMemoryRegistry_VerifiesSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keys := NewStaticKeyStore(map[string]ed25519.PublicKey{"key1": pub})
	r := NewInMemoryRegistry(keys)

	wasm := []byte("signed-module")
	digest := computeDigest(wasm)
	sig := ed25519.Sign(priv, []byte(digest))

	err = r.Register(manifest.TaskManifest{
		Task: "csv.parse", Version: "1.0.0",
		Signature: hex.EncodeToString(sig), KeyID: "key1",
	}, wasm)
	require.NoError(t, err)
}

func TestInMemoryRegistry_RejectsBadSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	keys := NewStaticKeyStore(map[string]ed25519.PublicKey{"key1": pub})
	r := NewInMemoryRegistry(keys)

	err = r.Register(manifest.TaskManifest{
		Task: "csv.parse", Version: "1.0.0",
		Signature: hex.EncodeToString([]byte("not-a-real-signature-and-too-short")), KeyID: "key1",
	}, []byte("x"))
	assert.Error(t, err)
}

func TestInMemoryRegistry_UnregisterAndList(t *testing.T) {
	r := NewInMemoryRegistry(nil)
	require.NoError(t, r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "1.0.0"}, []byte("v1")))
	require.NoError(t, r.Register(manifest.TaskManifest{Task: "csv.parse", Version: "2.0.0"}, []byte("v2")))

	require.NoError(t, r.Unregister("csv.parse", "1.0.0"))
	versions := r.List("csv.parse")
	require.Len(t, versions, 1)
	assert.Equal(t, "2.0.0", versions[0].Version)

	err := r.Unregister("csv.parse", "9.9.9")
	assert.ErrorIs(t, err, ErrModuleNotFound)
}

func computeDigest(wasm []byte) string {
	sum := sha256.Sum256(wasm)
	return "sha256:" + hex.EncodeToString(sum[:])
}
