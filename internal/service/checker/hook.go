package checker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// HookZoneEnv names the environment variable holding the alarming zone id.
const HookZoneEnv = "SECURITY_ZONE_ALARM_ZONE"

// RunHook starts command with the platform shell:
// - Linux/macOS: `sh -c <command>`
// - Windows:     `cmd.exe /C <command>`
// The alarming zone id is passed in HookZoneEnv. The command is started
// asynchronously and is not waited for.
func RunHook(ctx context.Context, command, zoneID string) error {
	var cmd *exec.Cmd

	if strings.Contains(strings.ToLower(runtime.GOOS), "windows") {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}

	cmd.Env = append(os.Environ(), HookZoneEnv+"="+zoneID)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start hook: %w", err)
	}

	go func() {
		_ = cmd.Wait()
	}()

	return nil
}
