package cli

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"go.viam.com/compnetx/config"
)

// SchemaAction is the corresponding Action for 'schema'.
func SchemaAction(c *cli.Context) error {
	out, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", out)
	return nil
}
