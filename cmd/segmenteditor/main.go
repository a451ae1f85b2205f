package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"segmenteditor/internal/app"
)

// main is the application entry point
func main() {
	var (
		helpFlag     = flag.Bool("help", false, "Show help message")
		versionFlag  = flag.Bool("version", false, "Show version information")
		sessionsFlag = flag.Bool("sessions", false, "List active editor sessions and exit")
	)
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	if *sessionsFlag {
		os.Exit(listSessions())
	}

	if err := runApplication(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// runApplication contains the core application logic that can be tested
func runApplication() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Segment Editor starting up",
		zap.String("component", "main"))

	application, err := app.NewApplication()
	if err != nil {
		logger.Error("Failed to create application",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
			zap.String("component", "main"))
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		logger.Error("Application runtime error",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("application runtime error: %w", err)
	}

	if err := application.Shutdown(); err != nil {
		logger.Error("Error during application shutdown",
			zap.Error(err),
			zap.String("component", "main"))
		return fmt.Errorf("application shutdown error: %w", err)
	}

	logger.Info("Segment Editor stopped successfully",
		zap.String("component", "main"))
	return nil
}

// listSessions prints the live sessions from the lock file
func listSessions() int {
	application, err := app.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	sessions := application.Sessions().List()
	if len(sessions) == 0 {
		fmt.Println("No active sessions.")
		return 0
	}

	fmt.Println("Active sessions:")
	for _, s := range sessions {
		fmt.Printf("  Port %d: %s\n", s.Port, s.Root)
	}
	return 0
}

// printHelp displays command line usage information
func printHelp() {
	fmt.Println("Segment Editor - transcript segment editing with seekable audio playback")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("    segmenteditor [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("    -help      Show this help message")
	fmt.Println("    -version   Show version information")
	fmt.Println("    -sessions  List active editor sessions and exit")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("    Configuration is read from environment variables (PROJECTS_DIR,")
	fmt.Println("    HOST, PORT, FRONTEND_DIR, LOCK_FILE), or from the YAML file named")
	fmt.Println("    by CONFIG_PATH. PORT=0 assigns a port from the session pool.")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("    PROJECTS_DIR=/storage6/dubbing_projects segmenteditor")
	fmt.Println("    PORT=8765 segmenteditor      # Fixed port, no pool allocation")
	fmt.Println("    segmenteditor -sessions      # Show which ports serve which roots")
}

// printVersion displays version information
func printVersion() {
	fmt.Println("Segment Editor")
	fmt.Println("Version: 1.0")
	fmt.Println("Backend: Go HTTP server over CSV-backed project stores")
}
