package shared

import "fmt"

// Set with -ldflags "-X github.com/Cod-e-Codes/clack/shared.<Name>=...";
// see mage/magefile.go.
var (
	ClientVersion = "dev"
	ServerVersion = "dev"
	BuildTime     = "unknown"
	GitCommit     = "unknown"
)

// GetVersionInfo describes the client build, as printed by clack -version.
func GetVersionInfo() string {
	return describeBuild(ClientVersion)
}

// GetServerVersionInfo describes the server build, as printed by
// clack-server -version.
func GetServerVersionInfo() string {
	return describeBuild(ServerVersion)
}

func describeBuild(version string) string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", version, BuildTime, GitCommit)
}
