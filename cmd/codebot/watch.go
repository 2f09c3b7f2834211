package main

import (
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajibigad/codebot/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch tasks in an interactive dashboard",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !isServerRunning(apiAddr) {
		fmt.Println("codebot server not running. Starting background service...")
		if err := startServer(); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	app := tui.New(apiAddr, apiKey)
	if err := app.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}

func isServerRunning(addr string) bool {
	client := http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return true
}

func startServer() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	// Detach so the server survives the dashboard exiting.
	cmd := exec.Command(exe, "serve")
	configureServerProc(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}

	fmt.Print("   Waiting for server...")
	for i := 0; i < 20; i++ {
		if isServerRunning(apiAddr) {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("server started but API not reachable at %s", apiAddr)
}
