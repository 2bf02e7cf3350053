// Command crewsync keeps a local cache of crew data usable offline and
// syncs it with the crew management API.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
