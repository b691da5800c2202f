package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

func BuildCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the API server binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("==> Building", output)
			err := run("go", "build", "-trimpath", "-o", output, "./cmd/server")
			if err != nil {
				return fmt.Errorf("go build failed: %w", err)
			}
			fmt.Println("==> Done")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "bin/server", "binary path")
	return cmd
}

func run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
