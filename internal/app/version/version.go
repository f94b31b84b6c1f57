package version

// Overridden at build time with
// -ldflags "-X proxysheet/internal/app/version.buildVersion=... -X proxysheet/internal/app/version.builtAt=...".
var (
	buildVersion = "dev"
	builtAt      = "unknown"
)

// Info is the build metadata logged at startup.
type Info struct {
	BuildVersion string `json:"buildVersion"`
	BuiltAt      string `json:"builtAt"`
}

func Get() Info {
	return Info{
		BuildVersion: buildVersion,
		BuiltAt:      builtAt,
	}
}
