package modules

// Conventional locations inside an artifact.
const (
	CorePath   = "LIB-INF/app-core"
	WebPath    = "LIB-INF/app"
	PortalPath = "LIB-INF/app-portal"
	FrontPath  = "LIB-INF/app-front"
	SharedPath = "LIB-INF/shared"

	// ClassesDir and LibDir are relative to a module directory.
	ClassesDir = "WEB-INF/classes"
	LibDir     = "WEB-INF/lib"

	// PropertiesFile carries the default listen port, relative to a module directory.
	PropertiesFile = "WEB-INF/local.app.properties"

	// FrontIndex is the entry page of the front-end bundle.
	FrontIndex = "index.html"

	// ServerDescriptor is the optional bundled server configuration at the artifact root.
	ServerDescriptor = "server.yaml"
)

// PrivateDirs are never served over HTTP.
var PrivateDirs = []string{"WEB-INF", "META-INF"}
