/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import (
	"os"

	"github.com/cristianoliveira/freshshell/cmd"
	"github.com/cristianoliveira/freshshell/internal/colors"
)

func main() {
	os.Exit(run(cmd.Execute))
}

func run(execute func() error) int {
	colors.StructuredInfo("startup", "main", "started", nil, nil)
	if err := execute(); err != nil {
		colors.StructuredError("startup", "main", "failed", err, nil)
		return 1
	}
	colors.StructuredInfo("startup", "main", "completed", nil, nil)
	return 0
}
