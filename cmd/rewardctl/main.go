// Command rewardctl scores model responses with the reward engine, either
// from JSONL files or as an HTTP service.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
