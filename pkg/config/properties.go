package config

import (
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// WebPortProperty is the key of the default listen port in a bundled
// properties resource.
const WebPortProperty = "app.webPort"

// ReadProperties parses a key=value properties resource from fsys.
func ReadProperties(fsys fs.FS, name string) (map[string]string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props, err := godotenv.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse properties %s: %w", name, err)
	}
	return props, nil
}

// PortFromProperties returns the port named by WebPortProperty. ok is false
// when the property is absent or empty.
func PortFromProperties(props map[string]string) (port int, ok bool, err error) {
	v := strings.TrimSpace(props[WebPortProperty])
	if v == "" {
		return 0, false, nil
	}
	port, err = strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s is not a number: %q", WebPortProperty, v)
	}
	if port < 1 || port > 65535 {
		return 0, false, fmt.Errorf("%s out of range: %d", WebPortProperty, port)
	}
	return port, true, nil
}
