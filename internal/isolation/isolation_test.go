package isolation

import (
	"archive/zip"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-bundle-host/internal/modules"
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testArtifact(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"LIB-INF/shared/common.jar": {Data: zipBytes(t, map[string]string{
			"common/version.txt": "shared",
			"shared-only.txt":    "from shared",
		})},
		"LIB-INF/shared/README": {Data: []byte("not an archive")},
		"LIB-INF/app/WEB-INF/classes/app.properties": {Data: []byte("web classes")},
		"LIB-INF/app/WEB-INF/lib/b-lib.jar": {Data: zipBytes(t, map[string]string{
			"common/version.txt": "web b",
		})},
		"LIB-INF/app/WEB-INF/lib/a-lib.zip": {Data: zipBytes(t, map[string]string{
			"common/version.txt": "web a",
			"a-only.txt":         "a",
		})},
		"LIB-INF/app-core/WEB-INF/classes/core.properties": {Data: []byte("core classes")},
	}
}

func read(t *testing.T, fsys fs.FS, name string) string {
	t.Helper()
	data, err := fs.ReadFile(fsys, name)
	require.NoError(t, err)
	return string(data)
}

func TestBuildShared(t *testing.T) {
	shared, err := BuildShared(testArtifact(t), Base(nil))
	require.NoError(t, err)

	assert.True(t, shared.IsShared())
	assert.Equal(t, "Shared", shared.Name())
	assert.Equal(t, []string{"LIB-INF/shared/common.jar"}, shared.EntryNames())
	assert.Equal(t, []string{"Shared", "Base"}, shared.Chain())
	assert.Equal(t, "shared", read(t, shared, "common/version.txt"))
}

func TestBuildShared_MissingDirectory(t *testing.T) {
	shared, err := BuildShared(fstest.MapFS{}, nil)
	require.NoError(t, err)
	assert.Empty(t, shared.EntryNames())
	require.NotNil(t, shared.Parent())
	assert.Equal(t, "Base", shared.Parent().Name())
}

func TestBuildShared_BrokenArchive(t *testing.T) {
	fsys := fstest.MapFS{
		"LIB-INF/shared/broken.jar": {Data: []byte("not a zip")},
	}
	_, err := BuildShared(fsys, nil)
	assert.Error(t, err)
}

func TestBuildModule_LookupOrder(t *testing.T) {
	artifact := testArtifact(t)
	shared, err := BuildShared(artifact, Base(HostResources()))
	require.NoError(t, err)

	web, err := BuildModule(modules.Web, artifact, modules.WebPath, shared)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"LIB-INF/app/WEB-INF/classes",
		"LIB-INF/app/WEB-INF/lib/a-lib.zip",
		"LIB-INF/app/WEB-INF/lib/b-lib.jar",
	}, web.EntryNames())
	assert.Equal(t, []string{"Web", "Shared", "Base"}, web.Chain())
	assert.Same(t, shared, web.Parent())

	// Own entries win over the shared layer, archives in name order.
	assert.Equal(t, "web a", read(t, web, "common/version.txt"))
	assert.Equal(t, "web classes", read(t, web, "app.properties"))
	assert.Equal(t, "from shared", read(t, web, "shared-only.txt"))

	origin, err := web.Resolve("shared-only.txt")
	require.NoError(t, err)
	assert.Equal(t, Origin{Layer: "Shared", Entry: "LIB-INF/shared/common.jar"}, origin)

	origin, err = web.Resolve("META-INF/resources/robots.txt")
	require.NoError(t, err)
	assert.Equal(t, "Base", origin.Layer)
}

func TestBuildModule_IsolatedFromSiblings(t *testing.T) {
	artifact := testArtifact(t)
	shared, err := BuildShared(artifact, nil)
	require.NoError(t, err)

	core, err := BuildModule(modules.Core, artifact, modules.CorePath, shared)
	require.NoError(t, err)
	web, err := BuildModule(modules.Web, artifact, modules.WebPath, shared)
	require.NoError(t, err)

	assert.Same(t, core.Parent(), web.Parent())
	assert.Equal(t, "shared", read(t, core, "common/version.txt"))

	_, err = core.Open("a-only.txt")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	_, err = web.Open("core.properties")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestBuildModule_RequiresSharedParent(t *testing.T) {
	artifact := testArtifact(t)

	_, err := BuildModule(modules.Web, artifact, modules.WebPath, Base(nil))
	assert.ErrorIs(t, err, ErrNotShared)

	_, err = BuildModule(modules.Web, artifact, modules.WebPath, nil)
	assert.ErrorIs(t, err, ErrNotShared)

	shared, err := BuildShared(artifact, nil)
	require.NoError(t, err)
	core, err := BuildModule(modules.Core, artifact, modules.CorePath, shared)
	require.NoError(t, err)
	_, err = BuildModule(modules.Web, artifact, modules.WebPath, core)
	assert.ErrorIs(t, err, ErrNotShared)
}

func TestBuildModule_BrokenLibrary(t *testing.T) {
	artifact := testArtifact(t)
	artifact["LIB-INF/app/WEB-INF/lib/c-broken.jar"] = &fstest.MapFile{Data: []byte("garbage")}

	shared, err := BuildShared(artifact, nil)
	require.NoError(t, err)
	_, err = BuildModule(modules.Web, artifact, modules.WebPath, shared)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c-broken.jar")
}

func TestBuildModule_DirectoryArtifact(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "LIB-INF", "app", "WEB-INF", "lib")
	require.NoError(t, os.MkdirAll(lib, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lib, "a.jar"), zipBytes(t, map[string]string{"a.txt": "on disk"}), 0o600))

	artifactFS := os.DirFS(dir)
	shared, err := BuildShared(artifactFS, Base(nil))
	require.NoError(t, err)
	layer, err := BuildModule(modules.Web, artifactFS, modules.WebPath, shared)
	require.NoError(t, err)

	require.Len(t, layer.entries, 1)
	assert.NotNil(t, layer.entries[0].closer, "archive on disk is read in place")
	assert.Equal(t, "on disk", read(t, layer, "a.txt"))

	require.NoError(t, layer.Close())
	assert.Empty(t, layer.EntryNames())
	_, err = layer.Open("a.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.NoError(t, shared.Close())
}

func TestBuildModule_ZippedArtifact(t *testing.T) {
	outer := zipBytes(t, map[string]string{
		"LIB-INF/app/WEB-INF/lib/a.jar": string(zipBytes(t, map[string]string{"a.txt": "nested"})),
	})
	zr, err := zip.NewReader(bytes.NewReader(outer), int64(len(outer)))
	require.NoError(t, err)

	shared, err := BuildShared(zr, Base(nil))
	require.NoError(t, err)
	layer, err := BuildModule(modules.Web, zr, modules.WebPath, shared)
	require.NoError(t, err)

	require.Len(t, layer.entries, 1)
	assert.Nil(t, layer.entries[0].closer)
	assert.Equal(t, "nested", read(t, layer, "a.txt"))
	assert.NoError(t, layer.Close())
}

func TestLayer_Open_InvalidPath(t *testing.T) {
	_, err := Base(HostResources()).Open("../etc/passwd")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestHostResources(t *testing.T) {
	data, err := fs.ReadFile(HostResources(), "META-INF/resources/robots.txt")
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
