package shared

import "testing"

// setBuildInfo mimics -ldflags -X and restores the defaults afterwards.
func setBuildInfo(t *testing.T, client, server, built, commit string) {
	t.Helper()
	saved := [4]string{ClientVersion, ServerVersion, BuildTime, GitCommit}
	ClientVersion, ServerVersion, BuildTime, GitCommit = client, server, built, commit
	t.Cleanup(func() {
		ClientVersion, ServerVersion, BuildTime, GitCommit = saved[0], saved[1], saved[2], saved[3]
	})
}

func TestVersionInfo(t *testing.T) {
	tests := []struct {
		name       string
		client     string
		server     string
		built      string
		commit     string
		wantClient string
		wantServer string
	}{
		{
			name:       "unstamped build",
			client:     "dev",
			server:     "dev",
			built:      "unknown",
			commit:     "unknown",
			wantClient: "dev (build: unknown, commit: unknown)",
			wantServer: "dev (build: unknown, commit: unknown)",
		},
		{
			name:       "stamped by mage",
			client:     "v0.3.1",
			server:     "v0.3.1-dirty",
			built:      "2026-10-19T08:00:00Z",
			commit:     "4f2a9c1",
			wantClient: "v0.3.1 (build: 2026-10-19T08:00:00Z, commit: 4f2a9c1)",
			wantServer: "v0.3.1-dirty (build: 2026-10-19T08:00:00Z, commit: 4f2a9c1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuildInfo(t, tt.client, tt.server, tt.built, tt.commit)
			if got := GetVersionInfo(); got != tt.wantClient {
				t.Errorf("Expected client %q, got %q", tt.wantClient, got)
			}
			if got := GetServerVersionInfo(); got != tt.wantServer {
				t.Errorf("Expected server %q, got %q", tt.wantServer, got)
			}
		})
	}
}
