package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CATProtocol/cat-token-box-sub000/consts"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Prints out the version",
		RunE:  versionFunc,
	}
}

func versionFunc(*cobra.Command, []string) error {
	fmt.Printf("%s@%s (protocol %q)\n", consts.Name, consts.Version, consts.ID)
	return nil
}
