// Command monica is a command-line interface for the soil-crop simulator.
package main

import (
	"fmt"
	"os"

	"github.com/zalf-rpm/monica-sub003/internal/cmd"
)

func main() {
	if err := cmd.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
