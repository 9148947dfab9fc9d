package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
)

const serviceTemplate = `[Unit]
Description=EchoBridge assistant chat bridge
After=network.target

[Service]
Type=simple
User=%s
ExecStart=%s run
Restart=on-failure
RestartSec=5s
Environment=HOME=%s

[Install]
WantedBy=default.target
`

// generateServiceFile creates the systemd service file content
func generateServiceFile(username, execPath, homeDir string) string {
	return fmt.Sprintf(serviceTemplate, username, execPath, homeDir)
}

func systemServicePath() string {
	return "/etc/systemd/system/echobridge.service"
}

func userServicePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "systemd", "user", "echobridge.service")
}

// isSystemInstall checks if --system or -s flag is present
func isSystemInstall(args []string) bool {
	for _, arg := range args {
		if arg == "--system" || arg == "-s" {
			return true
		}
	}
	return false
}

func getServicePath(system bool) string {
	if system {
		return systemServicePath()
	}
	return userServicePath()
}

// cmdService handles the service subcommand
func cmdService() {
	if len(os.Args) < 3 {
		printServiceUsage()
		os.Exit(1)
	}

	args := []string{}
	if len(os.Args) > 3 {
		args = os.Args[3:]
	}

	switch os.Args[2] {
	case "install":
		cmdServiceInstall(args)
	case "uninstall":
		cmdServiceUninstall(args)
	case "enable":
		runSystemctl(isSystemInstall(args), "enable")
	case "disable":
		runSystemctl(isSystemInstall(args), "disable")
	case "status":
		// systemctl status returns non-zero for a stopped service
		runSystemctl(isSystemInstall(args), "status")
	case "help", "-h", "--help":
		printServiceUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown service command: %s\n", os.Args[2])
		printServiceUsage()
		os.Exit(1)
	}
}

func printServiceUsage() {
	fmt.Println(`Usage: echobridge service <command> [flags]

Commands:
  install     Install systemd service file
  uninstall   Remove systemd service file
  enable      Enable service to start on boot
  disable     Disable service autostart
  status      Show service status

Flags:
  --system, -s   System-wide service (requires root)
                 Default: user service (~/.config/systemd/user/)`)
}

func cmdServiceInstall(args []string) {
	system := isSystemInstall(args)
	servicePath := getServicePath(system)

	currentUser, err := user.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get current user: %v\n", err)
		os.Exit(1)
	}

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	execPath, _ := filepath.Abs(exe)

	content := generateServiceFile(currentUser.Username, execPath, currentUser.HomeDir)

	dir := filepath.Dir(servicePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create directory %s: %v\n", dir, err)
		os.Exit(1)
	}

	if err := os.WriteFile(servicePath, []byte(content), 0644); err != nil {
		if os.IsPermission(err) && system {
			fmt.Fprintln(os.Stderr, "Error: permission denied. Run with sudo for system service.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: failed to write service file: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Printf("✅ Service file installed: %s\n", servicePath)

	if system {
		fmt.Println("Reloading systemd daemon...")
		exec.Command("systemctl", "daemon-reload").Run()
		fmt.Println("\nTo enable and start:")
		fmt.Println("  sudo systemctl enable echobridge")
		fmt.Println("  sudo systemctl start echobridge")
	} else {
		fmt.Println("Reloading user systemd daemon...")
		exec.Command("systemctl", "--user", "daemon-reload").Run()
		fmt.Println("\nTo enable and start:")
		fmt.Println("  systemctl --user enable echobridge")
		fmt.Println("  systemctl --user start echobridge")
	}
}

func cmdServiceUninstall(args []string) {
	system := isSystemInstall(args)
	servicePath := getServicePath(system)

	if _, err := os.Stat(servicePath); os.IsNotExist(err) {
		fmt.Println("⚠️ Service file not found (not installed?)")
		return
	}

	if system {
		exec.Command("systemctl", "stop", "echobridge").Run()
		exec.Command("systemctl", "disable", "echobridge").Run()
	} else {
		exec.Command("systemctl", "--user", "stop", "echobridge").Run()
		exec.Command("systemctl", "--user", "disable", "echobridge").Run()
	}

	if err := os.Remove(servicePath); err != nil {
		if os.IsPermission(err) && system {
			fmt.Fprintln(os.Stderr, "Error: permission denied. Run with sudo for system service.")
		} else {
			fmt.Fprintf(os.Stderr, "Error: failed to remove service file: %v\n", err)
		}
		os.Exit(1)
	}

	if system {
		exec.Command("systemctl", "daemon-reload").Run()
	} else {
		exec.Command("systemctl", "--user", "daemon-reload").Run()
	}

	fmt.Println("✅ Service uninstalled")
}

func runSystemctl(system bool, verb string) {
	var cmd *exec.Cmd
	if system {
		cmd = exec.Command("systemctl", verb, "echobridge")
	} else {
		cmd = exec.Command("systemctl", "--user", verb, "echobridge")
	}

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil && verb != "status" {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if system {
			fmt.Fprintln(os.Stderr, "Tip: Run with sudo for system service")
		}
		os.Exit(1)
	}
}
