package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <name> <image>...",
	Short: "Enroll a person from one or more face images",
	Long: `Register enrolls a person. Each image must contain a detectable face
of usable quality; the images are copied into the gallery directory and
their feature vectors cached. Registering an existing name fails unless
--replace is given, which drops the previous enrollment first.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().Bool("replace", false, "Replace an existing enrollment under the same name")
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := buildPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	name, images := args[0], args[1:]
	user, err := p.rec.Register(ctx, name, images, mustGetBool(cmd, "replace"))
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s (%s) with %d image(s)\n", user.DisplayName, user.Name, len(images))
	return nil
}
