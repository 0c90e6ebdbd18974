//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
)

const (
	BIN_DIR     = "../bin"
	SERVER_PATH = "../cmd/server"
	CLIENT_PATH = "../cmd/client"
	VERSION_PKG = "github.com/Cod-e-Codes/clack/shared"
)

// Build compiles the server and client binaries into ../bin.
func Build() error {
	mg.Deps(Vet)
	fmt.Println("🔨 Building clack-server and clack...")
	flags := ldflags()
	if err := runCmd("go", "build", "-ldflags", flags, "-o", BIN_DIR+"/clack-server", SERVER_PATH); err != nil {
		return err
	}
	return runCmd("go", "build", "-ldflags", flags, "-o", BIN_DIR+"/clack", CLIENT_PATH)
}

func Test() error {
	fmt.Println("🧪 Running tests...")
	return runCmd("go", "test", "-race", "../...")
}

func Vet() error {
	fmt.Println("🔍 Vetting...")
	return runCmd("go", "vet", "../...")
}

func Clean() {
	fmt.Println("🧹 Cleaning up...")
	os.RemoveAll(BIN_DIR)
}

func ldflags() string {
	version := gitOutput("describe", "--tags", "--always", "--dirty")
	if version == "" {
		version = "dev"
	}
	commit := gitOutput("rev-parse", "--short", "HEAD")
	if commit == "" {
		commit = "unknown"
	}
	built := time.Now().UTC().Format(time.RFC3339)

	return strings.Join([]string{
		"-X " + VERSION_PKG + ".ClientVersion=" + version,
		"-X " + VERSION_PKG + ".ServerVersion=" + version,
		"-X " + VERSION_PKG + ".BuildTime=" + built,
		"-X " + VERSION_PKG + ".GitCommit=" + commit,
	}, " ")
}

func gitOutput(args ...string) string {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func runCmd(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
