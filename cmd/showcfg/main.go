package main

import (
	"fmt"
	"os"

	"voicecap/internal/config"

	"github.com/pelletier/go-toml/v2"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	out, err := toml.Marshal(cfg.Redacted())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("# %s\n%s", cfg.Paths.ConfigPath, out)
}
