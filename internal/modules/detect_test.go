package modules

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marker(kind Kind) *fstest.MapFile {
	if kind == Front {
		return &fstest.MapFile{Data: []byte("<html></html>")}
	}
	return &fstest.MapFile{Data: []byte("x")}
}

func bundleFS(kinds ...Kind) fstest.MapFS {
	fsys := fstest.MapFS{}
	for _, k := range kinds {
		name := k.Marker()
		if k.Servlet() {
			name += "/placeholder.class"
		}
		fsys[name] = marker(k)
	}
	return fsys
}

func TestDetect(t *testing.T) {
	descs := Detect(bundleFS(Core, Front))

	require.Len(t, descs, 4)
	assert.Equal(t, []Kind{Core, Web, Portal, Front}, []Kind{descs[0].Kind, descs[1].Kind, descs[2].Kind, descs[3].Kind})
	assert.True(t, descs[0].Present)
	assert.False(t, descs[1].Present)
	assert.False(t, descs[2].Present)
	assert.True(t, descs[3].Present)
	assert.Equal(t, CorePath, descs[0].Path)
	assert.Equal(t, FrontPath, descs[3].Path)
}

func TestDetect_NilFS(t *testing.T) {
	for _, d := range Detect(nil) {
		assert.False(t, d.Present, d.Kind)
	}
}

func TestDetect_Monotone(t *testing.T) {
	fsys := fstest.MapFS{}
	for _, k := range Kinds() {
		assert.False(t, Has(Detect(fsys), k))

		name := k.Marker()
		if k.Servlet() {
			name += "/a.class"
		}
		fsys[name] = marker(k)
		assert.True(t, Has(Detect(fsys), k))

		for _, earlier := range Kinds() {
			if earlier == k {
				break
			}
			assert.True(t, Has(Detect(fsys), earlier), "%s stays present", earlier)
		}
	}

	delete(fsys, Web.Marker()+"/a.class")
	assert.False(t, Has(Detect(fsys), Web))
}

func TestDetect_FrontNeedsIndex(t *testing.T) {
	fsys := fstest.MapFS{
		FrontPath + "/main.js": &fstest.MapFile{Data: []byte("x")},
	}
	assert.False(t, Has(Detect(fsys), Front))
}

func TestIsBundle(t *testing.T) {
	tests := []struct {
		name  string
		kinds []Kind
		want  bool
	}{
		{"empty", nil, false},
		{"web only", []Kind{Web}, false},
		{"web and front", []Kind{Web, Front}, false},
		{"core and web", []Kind{Core, Web}, true},
		{"web and portal", []Kind{Web, Portal}, true},
		{"all", []Kind{Core, Web, Portal, Front}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBundle(Detect(bundleFS(tt.kinds...))))
		})
	}
}

func TestPropertiesPath(t *testing.T) {
	tests := []struct {
		name  string
		kinds []Kind
		want  string
		ok    bool
	}{
		{"none", nil, "", false},
		{"front only", []Kind{Front}, "", false},
		{"web", []Kind{Web}, WebPath + "/" + PropertiesFile, true},
		{"core", []Kind{Core}, CorePath + "/" + PropertiesFile, true},
		{"portal", []Kind{Portal}, PortalPath + "/" + PropertiesFile, true},
		{"core and portal bundle", []Kind{Core, Portal}, WebPath + "/" + PropertiesFile, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PropertiesPath(Detect(bundleFS(tt.kinds...)))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("portal")
	require.NoError(t, err)
	assert.Equal(t, Portal, k)

	_, err = ParseKind("plugin")
	assert.Error(t, err)
}

func TestKind_Accessors(t *testing.T) {
	assert.Equal(t, "LIB-INF/app-core/WEB-INF/classes", Core.Marker())
	assert.Equal(t, "LIB-INF/app-front/index.html", Front.Marker())
	assert.Equal(t, "Portal", Portal.Title())
	assert.False(t, Front.Servlet())
	assert.True(t, Web.Servlet())

	kinds := Kinds()
	kinds[0] = Front
	assert.Equal(t, Core, ValidKinds[0])
}
