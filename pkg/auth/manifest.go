package auth

import (
	"fmt"
	"os"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// ApplicationIDProperty is the manifest meta-data key holding the Facebook application id.
const ApplicationIDProperty = "com.facebook.sdk.ApplicationId"

// manifestDelim is "/" because meta-data keys are themselves dotted.
const manifestDelim = "/"

// Manifest is the subset of the host application manifest read at initialization.
//
//	{
//	  "package": "com.example.app",
//	  "meta-data": {"com.facebook.sdk.ApplicationId": "1234567890"}
//	}
type Manifest struct {
	Package       string
	ApplicationID string // Empty when the manifest does not declare one.
}

// LoadManifest parses a JSON manifest.
func LoadManifest(raw []byte) (Manifest, error) {
	k := koanf.New(manifestDelim)
	if err := k.Load(rawbytes.Provider(raw), kjson.Parser()); err != nil {
		return Manifest{}, fmt.Errorf("error parsing manifest: %w", err)
	}
	return Manifest{
		Package:       k.String("package"),
		ApplicationID: k.String("meta-data" + manifestDelim + ApplicationIDProperty),
	}, nil
}

// LoadManifestFile reads and parses the manifest at path.
func LoadManifestFile(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("error reading manifest: %w", err)
	}
	return LoadManifest(raw)
}
