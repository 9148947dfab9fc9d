package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/EchoBridge/echobridge/internal/bridge"
	"github.com/EchoBridge/echobridge/internal/config"
	"github.com/EchoBridge/echobridge/internal/logger"
	"github.com/EchoBridge/echobridge/internal/tui"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		cmdChat()
		return
	}

	switch os.Args[1] {
	case "chat":
		cmdChat()
	case "run":
		cmdRun()
	case "start":
		cmdStart()
	case "stop":
		cmdStop()
	case "restart":
		cmdRestart()
	case "status":
		cmdStatus()
	case "logs":
		cmdLogs()
	case "check":
		cmdCheck()
	case "service":
		cmdService()
	case "version", "-v", "--version":
		fmt.Printf("EchoBridge v%s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`EchoBridge — chat-platform bridge for a local AI assistant CLI

Usage:
  echobridge [command]

Commands:
  chat        Open the terminal chat UI (default)
  run         Run the bridge in the foreground
  start       Start the bridge daemon
  stop        Stop the bridge daemon
  restart     Restart the bridge daemon
  status      Check bridge daemon status
  logs        View bridge logs (live, Ctrl+C to exit)
  check       Validate the configuration
  service     Manage the systemd service
  version     Print version
  help        Show this help`)
}

// buildBridge loads and validates config, then assembles the service
// graph.
func buildBridge() (*bridge.Bridge, *config.Config) {
	cfg, err := config.Load()
	if err != nil {
		// First run: defaults are enough for the local TUI.
		cfg = config.Default()
	}

	result := cfg.Validate()
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "⚠️  %s\n", w)
	}
	if !result.IsValid() {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "❌ %s\n", e)
		}
		os.Exit(1)
	}

	log := logger.New(&logger.Config{Level: cfg.Log.Level})

	b, err := bridge.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	return b, cfg
}

func cmdChat() {
	b, _ := buildBridge()
	if err := b.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer b.Shutdown()

	if err := tui.Run(b); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func cmdRun() {
	b, _ := buildBridge()
	if err := b.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	b.Shutdown()
}

func cmdCheck() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	result := cfg.Validate()
	for _, w := range result.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Printf("❌ %s\n", e)
	}
	if result.IsValid() {
		fmt.Println("✅ Configuration is valid")
		return
	}
	os.Exit(1)
}

// === daemon management ===

func stateDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".echobridge")
}

func pidFile() string {
	return filepath.Join(stateDir(), "bridge.pid")
}

func logFile() string {
	return filepath.Join(stateDir(), "bridge.log")
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFile())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 just checks process existence
	return process.Signal(syscall.Signal(0)) == nil
}

func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(stateDir(), 0755); err != nil {
		return err
	}

	// Do NOT defer close - the daemon inherits this descriptor
	logF, err := os.OpenFile(logFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, "_internal_run")
	cmd.Stdout = logF
	cmd.Stderr = logF
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Detach into a new session
	}

	if err := cmd.Start(); err != nil {
		logF.Close()
		return err
	}

	return os.WriteFile(pidFile(), []byte(fmt.Sprintf("%d\n", cmd.Process.Pid)), 0644)
}

func cmdStart() {
	pid, err := readPID()
	if err == nil && isProcessRunning(pid) {
		fmt.Printf("⚠️  Bridge is already running (PID: %d)\n", pid)
		fmt.Println("Use 'echobridge restart' to restart it.")
		os.Exit(1)
	}

	fmt.Println("🚀 Starting bridge daemon...")
	if err := startDaemon(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(500 * time.Millisecond)
	pid, err = readPID()
	if err != nil || !isProcessRunning(pid) {
		fmt.Fprintln(os.Stderr, "❌ Bridge failed to start. Check logs: echobridge logs")
		os.Exit(1)
	}

	fmt.Printf("✅ Bridge started (PID: %d)\n", pid)
	fmt.Println("\n📝 View logs: echobridge logs")
	fmt.Println("🔍 Check status: echobridge status")
}

func cmdStop() {
	pid, err := readPID()
	if err != nil {
		fmt.Println("❌ Bridge is not running (no PID file)")
		return
	}

	if !isProcessRunning(pid) {
		fmt.Printf("⚠️  Bridge is not running (stale PID: %d)\n", pid)
		os.Remove(pidFile())
		fmt.Println("✅ Cleaned up stale PID file")
		return
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to find process: %v\n", err)
		os.Exit(1)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to stop bridge: %v\n", err)
		os.Exit(1)
	}

	for i := 0; i < 10; i++ {
		time.Sleep(500 * time.Millisecond)
		if !isProcessRunning(pid) {
			break
		}
	}

	if isProcessRunning(pid) {
		fmt.Println("⚠️  Bridge did not stop gracefully, sending SIGKILL...")
		process.Kill()
	}

	os.Remove(pidFile())
	fmt.Printf("✅ Bridge stopped (was PID: %d)\n", pid)
}

func cmdRestart() {
	fmt.Println("🔄 Restarting bridge...")

	pid, err := readPID()
	if err == nil && isProcessRunning(pid) {
		cmdStop()
		time.Sleep(1 * time.Second)
	}

	if err := startDaemon(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	time.Sleep(500 * time.Millisecond)
	pid, err = readPID()
	if err != nil || !isProcessRunning(pid) {
		fmt.Fprintln(os.Stderr, "❌ Bridge failed to start. Check logs: echobridge logs")
		os.Exit(1)
	}

	fmt.Printf("✅ Bridge restarted (PID: %d)\n", pid)
}

func cmdStatus() {
	pid, err := readPID()
	if err != nil {
		fmt.Println("❌ Bridge is not running (no PID file)")
		return
	}

	if !isProcessRunning(pid) {
		fmt.Printf("❌ Bridge is not running (stale PID: %d)\n", pid)
		fmt.Println("\n💡 Remove stale PID file: rm " + pidFile())
		return
	}

	fmt.Printf("✅ Bridge is running (PID: %d)\n", pid)

	if cfg, err := config.Load(); err == nil {
		if cfg.Platforms.Telegram.Enabled {
			fmt.Println("📱 Telegram: enabled")
		}
		if cfg.Platforms.Discord.Enabled {
			fmt.Println("💬 Discord: enabled")
		}
		if cfg.Metrics.Enabled {
			fmt.Printf("📊 Metrics: http://%s:%d%s\n", cfg.Metrics.Bind, cfg.Metrics.Port, cfg.Metrics.Path)
		}
	}

	fmt.Println("\n📝 View logs: echobridge logs")
}

func cmdLogs() {
	logPath := logFile()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Println("📭 No logs yet.")
		fmt.Println("\nLog file: " + logPath)
		return
	}

	cmd := exec.Command("tail", "-f", logPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Run()
}

func init() {
	// Entry point for the detached daemon process
	if len(os.Args) >= 2 && os.Args[1] == "_internal_run" {
		cmdRun()
		os.Exit(0)
	}
}
