package cli

import (
	"context"
	"fmt"

	"github.com/mortenlj/yakupci/internal"
	"github.com/mortenlj/yakupci/internal/platform"
)

// Represents the 'yakupci version' command.
type VersionCmd struct {
	Platforms bool `help:"Also list the supported platforms and their target triples."`
}

// Prints the version string, optionally followed by the platform table.
func (c *VersionCmd) Run(ctx context.Context) error {
	fmt.Printf("%s %s\n", internal.Name, internal.VersionString())
	if !c.Platforms {
		return nil
	}

	table := platform.Default()
	host := platform.Host()
	for _, p := range table.Platforms() {
		marker := ""
		if p == host {
			marker = " (host)"
		}
		fmt.Printf("%s\t%s%s\n", p, table[p], marker)
	}
	return nil
}
